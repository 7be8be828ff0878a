// Package main receives Meta webhook calls: it answers the subscription
// handshake and routes inbound messages onto the image or text work queue.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/receiptly/whatsapp-receipts-backend/internal/awsutil"
	"github.com/receiptly/whatsapp-receipts-backend/internal/config"
	"github.com/receiptly/whatsapp-receipts-backend/internal/currency"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/httpx"
	"github.com/receiptly/whatsapp-receipts-backend/internal/logging"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
	"github.com/receiptly/whatsapp-receipts-backend/internal/queue"
	"github.com/receiptly/whatsapp-receipts-backend/internal/wa"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// UserStore provisions sender profiles on first contact.
type UserStore interface {
	EnsureUser(ctx context.Context, u models.User) error
}

// Sender publishes raw payloads to a work queue.
type Sender interface {
	Send(ctx context.Context, queueURL, body string) error
}

// App holds the application state for the webhook Lambda.
type App struct {
	env   config.Env
	log   zerolog.Logger
	users UserStore
	pub   Sender
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoad("IMAGE_QUEUE_URL", "TEXT_QUEUE_URL", "META_VERIFY_TOKEN")
	logger := logging.New(env.LogLevel, env.LogPretty)

	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		logger.Fatal().Err(err).Msg("load aws config")
	}

	app := &App{
		env: env,
		log: logger,
		users: &ddb.Repo{
			DB: dynamodb.NewFromConfig(cfg),
			Tables: ddb.Tables{
				Messages:   env.MessagesTable,
				Images:     env.ImagesTable,
				Receipts:   env.ReceiptsTable,
				Users:      env.UsersTable,
				Memory:     env.MemoryTable,
				Categories: env.CategoryTable,
			},
		},
		pub: &queue.Publisher{Client: sqs.NewFromConfig(cfg)},
	}
	lambda.Start(app.handler)
}

// ---- Handler ----

func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case "GET":
		return a.verify(req)
	case "POST":
		return a.route(ctx, req)
	default:
		return httpx.Error(405, "method not allowed")
	}
}

// verify answers the Meta subscription handshake by echoing hub.challenge.
func (a *App) verify(req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	q := req.QueryStringParameters
	if q["hub.mode"] == "subscribe" && a.env.VerifyToken != "" && q["hub.verify_token"] == a.env.VerifyToken {
		return httpx.Text(200, q["hub.challenge"])
	}
	a.log.Warn().Msg("webhook verification rejected")
	return httpx.Error(403, "verification failed")
}

// route classifies the message type and enqueues the raw payload to the
// matching work queue. Unusable payloads are acknowledged and dropped.
func (a *App) route(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var env wa.Envelope
	if err := json.Unmarshal([]byte(req.Body), &env); err != nil {
		a.log.Error().Err(err).Msg("invalid webhook body")
		return httpx.Error(400, "invalid JSON")
	}

	waID := env.WaID()
	msg := env.FirstMessage()
	if waID == "" || msg == nil {
		a.log.Debug().Msg("no routable message in payload")
		return httpx.JSON(200, map[string]string{"message": "ignored"})
	}

	// First contact provisions the profile with a currency inferred from
	// the calling-code prefix. Failure here must not drop the message.
	err := a.users.EnsureUser(ctx, models.User{
		PK:          waID,
		Currency:    currency.FromPhone(waID),
		TrialStatus: "trial",
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		a.log.Error().Err(err).Str("wa_id", waID).Msg("ensure user failed")
	}

	var queueURL string
	switch {
	case msg.Image != nil && msg.Image.ID != "":
		queueURL = a.env.ImageQueueURL
	case msg.Type == "text" || msg.Text != nil:
		queueURL = a.env.TextQueueURL
	default:
		a.log.Debug().Str("type", msg.Type).Msg("unsupported message type")
		return httpx.JSON(200, map[string]string{"message": "ignored"})
	}

	if err := a.pub.Send(ctx, queueURL, req.Body); err != nil {
		a.log.Error().Err(err).Msg("enqueue failed")
		return httpx.Error(500, "enqueue failed")
	}
	return httpx.JSON(200, map[string]string{"message": "queued"})
}
