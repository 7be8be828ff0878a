// Package receipts composes and writes the canonical receipt record.
package receipts

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/merchant"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
)

// ISOMillis renders timestamps the way the receipt sort keys expect them.
const ISOMillis = "2006-01-02T15:04:05.000Z07:00"

// Store writes receipt records.
type Store interface {
	PutReceipt(ctx context.Context, rec models.Receipt) error
}

// CategoryResolver resolves a merchant to a spend category.
type CategoryResolver interface {
	Category(ctx context.Context, merchant string) (string, *merchant.Lookup)
}

// Input carries the fully-resolved receipt fields.
type Input struct {
	WaID     string
	Merchant string
	Total    float64
	TxDate   string // empty when OCR could not extract
	TxTime   string
	Items    []string
	ImageID  string
	RawOCR   string // raw analyzeResult JSON, audit only
	Currency string
	Foreign  bool
}

// Saver persists receipts, resolving the spend category on the way in.
type Saver struct {
	Store    Store
	Resolver CategoryResolver
	Now      func() time.Time
	Log      zerolog.Logger
}

// Save resolves the category (unless the merchant is unknown), composes the
// composite sort key from the transaction timestamp and total, and writes
// the record. A write failure propagates; there are no retries.
func (s *Saver) Save(ctx context.Context, in Input) (pk, sk string, err error) {
	category := models.Unknown
	var info *merchant.Lookup
	if in.Merchant != models.Unknown {
		category, info = s.Resolver.Category(ctx, in.Merchant)
	} else {
		s.Log.Info().Msg("merchant unknown, skipping category lookup")
	}

	now := s.now()
	pk = models.UserPK(in.WaID)
	sk = models.ReceiptSK(Timestamp(in.TxDate, in.TxTime, now), in.Total)

	rec := models.Receipt{
		PK:               pk,
		SK:               sk,
		UserPK:           in.WaID,
		Merchant:         in.Merchant,
		Total:            in.Total,
		TxDate:           orUnknown(in.TxDate),
		TxTime:           orUnknown(in.TxTime),
		Items:            strings.Join(in.Items, "\n"),
		ImageID:          in.ImageID,
		Category:         category,
		RawJSON:          in.RawOCR,
		CreatedAt:        now.UnixMilli(),
		OriginalCurrency: in.Currency,
		ForeignReceipt:   in.Foreign,
	}
	if info != nil {
		if b, err := json.Marshal(info); err == nil {
			rec.MerchantInfo = string(b)
		}
	}

	if err := s.Store.PutReceipt(ctx, rec); err != nil {
		return "", "", err
	}
	return pk, sk, nil
}

// Timestamp composes the sort-key timestamp from the extracted date and
// time, falling back to the date alone, then to now. Duplicate detection
// depends on every caller composing the key the same way, so this is the
// single source of the sort-key timestamp.
func Timestamp(txDate, txTime string, now time.Time) string {
	if txDate != "" && txTime != "" {
		if t, err := time.Parse("2006-01-02T15:04:05Z07:00", txDate+"T"+txTime+"Z"); err == nil {
			return t.UTC().Format(ISOMillis)
		}
	}
	if txDate != "" {
		if t, err := time.Parse("2006-01-02", txDate); err == nil {
			return t.UTC().Format(ISOMillis)
		}
	}
	return now.UTC().Format(ISOMillis)
}

func (s *Saver) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func orUnknown(v string) string {
	if v == "" {
		return models.Unknown
	}
	return v
}
