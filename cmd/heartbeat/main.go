// Package main logs heartbeat events from the monitoring queue.
package main

import (
	"context"
	"encoding/json"

	"github.com/receiptly/whatsapp-receipts-backend/internal/config"
	"github.com/receiptly/whatsapp-receipts-backend/internal/logging"
	"github.com/receiptly/whatsapp-receipts-backend/internal/queue"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
)

// App holds the logger for the heartbeat Lambda.
type App struct {
	log zerolog.Logger
}

func main() {
	env := config.MustLoad()
	app := &App{log: logging.New(env.LogLevel, env.LogPretty)}
	lambda.Start(app.handler)
}

func (a *App) handler(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		var hb queue.HeartbeatEvent
		if err := json.Unmarshal([]byte(rec.Body), &hb); err != nil {
			a.log.Error().Err(err).Str("body", rec.Body).Msg("unparseable heartbeat")
			continue
		}
		a.log.Info().Str("event_id", hb.EventID).Str("user_id", hb.UserID).Str("timestamp", hb.Timestamp).Msg("heartbeat")
	}
	return nil
}
