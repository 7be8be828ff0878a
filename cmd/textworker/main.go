// Package main answers free-text finance questions off the text SQS queue.
package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/receiptly/whatsapp-receipts-backend/internal/awsutil"
	"github.com/receiptly/whatsapp-receipts-backend/internal/config"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/llm"
	"github.com/receiptly/whatsapp-receipts-backend/internal/logging"
	"github.com/receiptly/whatsapp-receipts-backend/internal/query"
	"github.com/receiptly/whatsapp-receipts-backend/internal/report"
	"github.com/receiptly/whatsapp-receipts-backend/internal/secrets"
	"github.com/receiptly/whatsapp-receipts-backend/internal/wa"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// App holds the application state for the text worker.
type App struct {
	env     config.Env
	log     zerolog.Logger
	repo    *ddb.Repo
	secrets *secrets.Cache
	httpc   *http.Client
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoad()
	logger := logging.New(env.LogLevel, env.LogPretty)

	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		logger.Fatal().Err(err).Msg("load aws config")
	}

	app := &App{
		env: env,
		log: logger,
		repo: &ddb.Repo{
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
		secrets: secrets.NewCache(secretsmanager.NewFromConfig(cfg)),
		httpc:   http.DefaultClient,
	}
	lambda.Start(app.handler)
}

// ---- Handler ----

// handler processes each SQS record independently; a failure is reported
// and never aborts sibling records.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) error {
	pipeline, notifier, err := a.buildPipeline(ctx)
	if err != nil {
		return err
	}
	reporter := &report.Reporter{Notifier: notifier, Log: a.log}

	for _, rec := range ev.Records {
		a.processRecord(ctx, pipeline, reporter, rec)
	}
	return nil
}

func (a *App) processRecord(ctx context.Context, p *query.Pipeline, reporter *report.Reporter, rec events.SQSMessage) {
	recordID := uuid.NewString()
	log := a.log.With().Str("record_id", recordID).Logger()

	var env wa.Envelope
	if err := json.Unmarshal([]byte(rec.Body), &env); err != nil {
		log.Error().Err(err).Msg("unparseable record body")
		return
	}

	waID := env.WaID()
	phoneNumberID := env.PhoneNumberID()
	msg := env.FirstMessage()
	if waID == "" || msg == nil || msg.Text == nil || msg.Text.Body == "" {
		log.Warn().Str("wa_id", waID).Msg("no text content, skipping")
		return
	}

	scoped := *p
	scoped.Log = log
	if err := scoped.Handle(ctx, waID, phoneNumberID, msg.Text.Body); err != nil {
		reporter.Report(ctx, err, waID, phoneNumberID)
	}
}

func (a *App) buildPipeline(ctx context.Context) (*query.Pipeline, query.Notifier, error) {
	var meta secrets.MetaSecret
	if err := a.secrets.JSON(ctx, a.env.MetaSecretID, &meta); err != nil {
		return nil, nil, err
	}
	var openai secrets.OpenAISecret
	if err := a.secrets.JSON(ctx, a.env.OpenAISecretID, &openai); err != nil {
		return nil, nil, err
	}

	graph := wa.NewClient(a.httpc, meta.AccessToken, a.env.GraphVersion)
	return &query.Pipeline{
		LLM:      llm.NewClient(a.httpc, openai.APIKey, a.env.OpenAIModel),
		Store:    a.repo,
		Notifier: graph,
		Log:      a.log,
	}, graph, nil
}
