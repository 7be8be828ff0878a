// Package ingest implements the image ingestion pipeline: one inbound
// image-bearing message in, at most one persisted receipt out, with a
// user-facing notification on every rejection path.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/currency"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
	"github.com/receiptly/whatsapp-receipts-backend/internal/ocr"
	"github.com/receiptly/whatsapp-receipts-backend/internal/receipts"
	"github.com/receiptly/whatsapp-receipts-backend/internal/wa"
)

// User-facing rejection notifications.
const (
	msgNotReceipt    = "Hmm, this image doesn't look like a receipt. Please send a clear photo of a receipt."
	msgDuplicateImg  = "You already added that receipt"
	msgLowConfidence = "Sorry, I could not read the receipt in that picture. Please try with a clearer image."
)

// Outcome classifies how one invocation ended. Every value except
// OutcomeSaved means no receipt was produced.
type Outcome int

// Possible outcomes of Process.
const (
	OutcomeSaved Outcome = iota
	OutcomeSkipped
	OutcomeNoImage
	OutcomeNotReceipt
	OutcomeDuplicateImage
	OutcomeLowConfidence
	OutcomeDuplicateReceipt
)

// String names the outcome for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoImage:
		return "no_image"
	case OutcomeNotReceipt:
		return "not_receipt"
	case OutcomeDuplicateImage:
		return "duplicate_image"
	case OutcomeLowConfidence:
		return "low_confidence"
	case OutcomeDuplicateReceipt:
		return "duplicate_receipt"
	}
	return "unknown"
}

// Media resolves and downloads provider-side images.
type Media interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Classifier tags an image; used only as an advisory pre-filter.
type Classifier interface {
	ClassifyTags(ctx context.Context, image []byte) ([]string, error)
}

// Extractor runs OCR over the image bytes.
type Extractor interface {
	Analyze(ctx context.Context, image []byte) (*ocr.Result, error)
}

// Store is the slice of the repository the pipeline writes through.
type Store interface {
	PutMessage(ctx context.Context, rec models.MessageRecord) error
	MarkMessageProcessed(ctx context.Context, pk, sk, imageID, receiptPK, receiptSK string) error
	InsertFingerprint(ctx context.Context, fp models.ImageFingerprint) error
	GetUser(ctx context.Context, waID string) (*models.User, error)
	GetReceipt(ctx context.Context, pk, sk string) (*models.Receipt, error)
}

// Saver persists the composed receipt.
type Saver interface {
	Save(ctx context.Context, in receipts.Input) (pk, sk string, err error)
}

// RateSource fetches currency pair conversion rates.
type RateSource interface {
	Pair(ctx context.Context, from, to string) (float64, error)
}

// Notifier sends a text back to the user.
type Notifier interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
}

// Heartbeat emits a best-effort progress signal after a successful save.
type Heartbeat interface {
	Publish(ctx context.Context, waID string) error
}

// Pipeline wires the stages together. All collaborators are required except
// Heartbeat, which may be nil.
type Pipeline struct {
	Media      Media
	Classifier Classifier
	OCR        Extractor
	Store      Store
	Saver      Saver
	Rates      RateSource
	Notifier   Notifier
	Heartbeat  Heartbeat
	Log        zerolog.Logger
	Now        func() time.Time
}

// Process runs one message through the pipeline. Business-rule rejections
// (non-receipt image, duplicates, low confidence) notify the user and
// return a nil error; hard failures return an error for the caller's
// reporter. The raw envelope JSON is logged as the message audit record.
func (p *Pipeline) Process(ctx context.Context, env *wa.Envelope, raw string) (Outcome, error) {
	waID := env.WaID()
	phoneNumberID := env.PhoneNumberID()
	msg := env.FirstMessage()
	if waID == "" || msg == nil || msg.ID == "" {
		p.Log.Warn().Str("wa_id", waID).Msg("envelope missing sender or message id, skipping")
		return OutcomeSkipped, nil
	}
	log := p.Log.With().Str("wa_id", waID).Str("message_id", msg.ID).Logger()

	now := p.now()
	messagePK := models.UserPK(waID)
	messageSK := models.MessageSK(now, msg.ID)

	// Audit log first. Losing the record is tolerated; processing continues.
	err := p.Store.PutMessage(ctx, models.MessageRecord{
		PK:         messagePK,
		SK:         messageSK,
		UserPK:     waID,
		Status:     models.StatusReceived,
		RawMessage: raw,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to log message record")
	}

	if msg.Image == nil || msg.Image.ID == "" {
		log.Debug().Msg("no image in message")
		return OutcomeNoImage, nil
	}
	imageID := msg.Image.ID

	url, err := p.Media.MediaURL(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("resolve media url: %w", err)
	}
	image, err := p.Media.Download(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("download media: %w", err)
	}

	// Advisory pre-filter: a classifier failure never blocks processing.
	if tags, err := p.Classifier.ClassifyTags(ctx, image); err != nil {
		log.Error().Err(err).Msg("image classification unavailable, assuming receipt")
	} else if !ocr.LooksLikeReceipt(tags) {
		log.Info().Strs("tags", tags).Msg("image does not look like a receipt")
		p.notify(ctx, log, phoneNumberID, waID, msgNotReceipt)
		return OutcomeNotReceipt, nil
	}

	// Content dedup, global across users. The conditional insert is atomic,
	// so two simultaneous identical images cannot both pass.
	hash := sha256.Sum256(image)
	err = p.Store.InsertFingerprint(ctx, models.ImageFingerprint{
		Hash:            hex.EncodeToString(hash[:]),
		UserPK:          waID,
		MessagePK:       messagePK,
		MessageSK:       messageSK,
		CreatedAt:       now.UnixMilli(),
		WhatsAppImageID: imageID,
	})
	switch {
	case errors.Is(err, ddb.ErrDuplicateImage):
		log.Info().Msg("duplicate image fingerprint")
		p.notify(ctx, log, phoneNumberID, waID, msgDuplicateImg)
		return OutcomeDuplicateImage, nil
	case err != nil:
		log.Error().Err(err).Msg("failed to record image fingerprint")
	}

	result, err := p.OCR.Analyze(ctx, image)
	if err != nil {
		return 0, fmt.Errorf("ocr analyze: %w", err)
	}
	if !ocr.IsValidReceipt(result) {
		log.Info().Msg("ocr result below confidence threshold")
		p.notify(ctx, log, phoneNumberID, waID, msgLowConfidence)
		return OutcomeLowConfidence, nil
	}

	doc := result.Doc()
	merchantName := doc.String("MerchantName", models.Unknown)
	total := doc.Number("Total", 0)
	inferred := currency.Infer(result.Content, result.TaxCurrencyCodes())
	txDate := doc.Fields["TransactionDate"].ValueDate
	txTime := doc.Fields["TransactionTime"].ValueTime

	userCurrency := "EUR"
	if u, err := p.Store.GetUser(ctx, waID); err != nil {
		log.Error().Err(err).Msg("failed to fetch user currency, using default")
	} else if u != nil && u.Currency != "" {
		userCurrency = u.Currency
	}

	foreign := inferred != userCurrency
	rate := 1.0
	if foreign {
		log.Info().Str("from", inferred).Str("to", userCurrency).Msg("foreign receipt, fetching exchange rate")
		if r, err := p.Rates.Pair(ctx, inferred, userCurrency); err != nil {
			// Best effort: keep the unconverted amount.
			log.Error().Err(err).Msg("exchange rate fetch failed, keeping original amount")
		} else {
			rate = r
			total = currency.Round2(total * rate)
		}
	}

	items := extractItems(doc, rate)

	dupMsg := fmt.Sprintf(
		"It looks like you already uploaded a receipt for %s totaling %s on %s. No need to upload it again!",
		merchantName, models.FormatTotal(total), orToday(txDate, now))

	// Duplicate-transaction check on (owner, timestamp, total), composed the
	// same way the saver composes the stored sort key. The conditional
	// receipt write backs this up at persistence time.
	dupSK := models.ReceiptSK(receipts.Timestamp(txDate, txTime, now), total)
	if existing, err := p.Store.GetReceipt(ctx, messagePK, dupSK); err != nil {
		log.Error().Err(err).Msg("duplicate receipt check failed")
	} else if existing != nil {
		log.Info().Str("sk", dupSK).Msg("duplicate transaction")
		p.notify(ctx, log, phoneNumberID, waID, dupMsg)
		return OutcomeDuplicateReceipt, nil
	}

	rawOCR, _ := json.Marshal(result)
	receiptPK, receiptSK, err := p.Saver.Save(ctx, receipts.Input{
		WaID:     waID,
		Merchant: merchantName,
		Total:    total,
		TxDate:   txDate,
		TxTime:   txTime,
		Items:    items,
		ImageID:  imageID,
		RawOCR:   string(rawOCR),
		Currency: inferred,
		Foreign:  foreign,
	})
	if errors.Is(err, ddb.ErrDuplicateReceipt) {
		// Lost the race past the pre-write check; same business rule,
		// same notification.
		log.Info().Msg("duplicate transaction caught by conditional write")
		p.notify(ctx, log, phoneNumberID, waID, dupMsg)
		return OutcomeDuplicateReceipt, nil
	}
	if err != nil {
		return 0, fmt.Errorf("save receipt: %w", err)
	}
	log.Info().Str("receipt_sk", receiptSK).Msg("receipt saved")

	if err := p.Store.MarkMessageProcessed(ctx, messagePK, messageSK, imageID, receiptPK, receiptSK); err != nil {
		return 0, fmt.Errorf("mark message processed: %w", err)
	}

	if p.Heartbeat != nil {
		if err := p.Heartbeat.Publish(ctx, waID); err != nil {
			log.Error().Err(err).Msg("heartbeat publish failed")
		}
	}
	return OutcomeSaved, nil
}

// extractItems renders line items as "<qty> x <desc> @ <price>" with prices
// scaled by the exchange rate and shown at two decimals.
func extractItems(doc *ocr.Document, rate float64) []string {
	itemsField, ok := doc.Fields["Items"]
	if !ok {
		return nil
	}
	var items []string
	for _, entry := range itemsField.ValueArray {
		obj := entry.ValueObject
		desc := obj["Description"].ValueString
		qty := 1.0
		if obj["Quantity"].ValueNumber != nil {
			qty = *obj["Quantity"].ValueNumber
		}
		price := 0.0
		if obj["Price"].ValueNumber != nil {
			price = *obj["Price"].ValueNumber
		} else if obj["TotalPrice"].ValueNumber != nil {
			price = *obj["TotalPrice"].ValueNumber
		}
		items = append(items, fmt.Sprintf("%s x %s @ %.2f", models.FormatTotal(qty), desc, price*rate))
	}
	return items
}

func (p *Pipeline) notify(ctx context.Context, log zerolog.Logger, phoneNumberID, to, body string) {
	if phoneNumberID == "" || to == "" {
		return
	}
	if err := p.Notifier.SendText(ctx, phoneNumberID, to, body); err != nil {
		log.Error().Err(err).Msg("user notification failed")
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// orToday returns the transaction date or today's date when OCR found none.
func orToday(txDate string, now time.Time) string {
	if txDate != "" {
		return txDate
	}
	return now.UTC().Format("2006-01-02")
}
