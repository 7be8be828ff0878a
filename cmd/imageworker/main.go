// Package main runs the image ingestion pipeline off the image SQS queue.
package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/receiptly/whatsapp-receipts-backend/internal/awsutil"
	"github.com/receiptly/whatsapp-receipts-backend/internal/config"
	"github.com/receiptly/whatsapp-receipts-backend/internal/currency"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ingest"
	"github.com/receiptly/whatsapp-receipts-backend/internal/llm"
	"github.com/receiptly/whatsapp-receipts-backend/internal/logging"
	"github.com/receiptly/whatsapp-receipts-backend/internal/merchant"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ocr"
	"github.com/receiptly/whatsapp-receipts-backend/internal/queue"
	"github.com/receiptly/whatsapp-receipts-backend/internal/receipts"
	"github.com/receiptly/whatsapp-receipts-backend/internal/report"
	"github.com/receiptly/whatsapp-receipts-backend/internal/secrets"
	"github.com/receiptly/whatsapp-receipts-backend/internal/wa"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// App holds the application state for the image worker.
type App struct {
	env     config.Env
	log     zerolog.Logger
	repo    *ddb.Repo
	secrets *secrets.Cache
	pub     *queue.Publisher
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
		pub:     &queue.Publisher{Client: sqs.NewFromConfig(cfg)},
		httpc:   http.DefaultClient,
	}
	lambda.Start(app.handler)
}

// ---- Handler ----

// recordResult is the per-item outcome collected for the batch.
type recordResult struct {
	recordID string
	outcome  ingest.Outcome
	err      error
}

// handler processes each SQS record independently: one record's failure is
// reported and never aborts its siblings.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) error {
	pipeline, notifier, err := a.buildPipeline(ctx)
	if err != nil {
		// Without credentials nothing in the batch can proceed; let the
		// queue redeliver.
		return err
	}
	reporter := &report.Reporter{Notifier: notifier, Log: a.log}

	results := make([]recordResult, 0, len(ev.Records))
	for _, rec := range ev.Records {
		res := a.processRecord(ctx, pipeline, reporter, rec)
		results = append(results, res)
	}

	saved, failed := 0, 0
	for _, r := range results {
		if r.err != nil {
			failed++
		} else if r.outcome == ingest.OutcomeSaved {
			saved++
		}
	}
	a.log.Info().Int("records", len(results)).Int("saved", saved).Int("failed", failed).Msg("image batch done")
	return nil
}

func (a *App) processRecord(ctx context.Context, p *ingest.Pipeline, reporter *report.Reporter, rec events.SQSMessage) recordResult {
	recordID := uuid.NewString()
	log := a.log.With().Str("record_id", recordID).Logger()

	var env wa.Envelope
	if err := json.Unmarshal([]byte(rec.Body), &env); err != nil {
		log.Error().Err(err).Msg("unparseable record body")
		return recordResult{recordID: recordID, err: err}
	}

	scoped := *p
	scoped.Log = log
	outcome, err := scoped.Process(ctx, &env, rec.Body)
	if err != nil {
		reporter.Report(ctx, err, env.WaID(), env.PhoneNumberID())
		return recordResult{recordID: recordID, err: err}
	}
	log.Info().Stringer("outcome", outcome).Msg("record processed")
	return recordResult{recordID: recordID, outcome: outcome}
}

// buildPipeline assembles the pipeline from cached secrets. Secrets are
// fetched once per container.
func (a *App) buildPipeline(ctx context.Context) (*ingest.Pipeline, ingest.Notifier, error) {
	var meta secrets.MetaSecret
	if err := a.secrets.JSON(ctx, a.env.MetaSecretID, &meta); err != nil {
		return nil, nil, err
	}
	var azure secrets.AzureSecret
	if err := a.secrets.JSON(ctx, a.env.AzureSecretID, &azure); err != nil {
		return nil, nil, err
	}
	var openai secrets.OpenAISecret
	if err := a.secrets.JSON(ctx, a.env.OpenAISecretID, &openai); err != nil {
		return nil, nil, err
	}
	var brave secrets.BraveSecret
	if err := a.secrets.JSON(ctx, a.env.BraveSecretID, &brave); err != nil {
		return nil, nil, err
	}
	var rates secrets.ExchangeRateSecret
	if err := a.secrets.JSON(ctx, a.env.ExchangeRateSecretID, &rates); err != nil {
		return nil, nil, err
	}

	graph := wa.NewClient(a.httpc, meta.AccessToken, a.env.GraphVersion)
	ocrClient := ocr.NewClient(a.httpc, azure.OCREndpoint, azure.VisionEndpoint, azure.OCRKey)

	saver := &receipts.Saver{
		Store: a.repo,
		Resolver: &merchant.Resolver{
			Store:  a.repo,
			Search: merchant.NewBraveClient(a.httpc, brave.APIKey),
			LLM:    llm.NewClient(a.httpc, openai.APIKey, a.env.OpenAIModel),
			Log:    a.log,
		},
		Log: a.log,
	}

	var heartbeat ingest.Heartbeat
	if a.env.HeartbeatQueueURL != "" {
		heartbeat = &queue.Heartbeat{Pub: a.pub, QueueURL: a.env.HeartbeatQueueURL}
	}

	return &ingest.Pipeline{
		Media:      graph,
		Classifier: ocrClient,
		OCR:        ocrClient,
		Store:      a.repo,
		Saver:      saver,
		Rates:      currency.NewRateClient(a.httpc, rates.APIKey),
		Notifier:   graph,
		Heartbeat:  heartbeat,
		Log:        a.log,
	}, graph, nil
}
