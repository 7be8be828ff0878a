package receipts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/merchant"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
)

// ----- Fakes -----

type fakeStore struct {
	rec models.Receipt
	err error
}

func (f *fakeStore) PutReceipt(ctx context.Context, rec models.Receipt) error {
	f.rec = rec
	return f.err
}

type fakeResolver struct {
	category string
	info     *merchant.Lookup
	called   bool
}

func (f *fakeResolver) Category(ctx context.Context, m string) (string, *merchant.Lookup) {
	f.called = true
	return f.category, f.info
}

var fixedNow = time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)

func newSaver(store *fakeStore, resolver *fakeResolver) *Saver {
	return &Saver{Store: store, Resolver: resolver, Now: func() time.Time { return fixedNow }, Log: zerolog.Nop()}
}

// ----- Tests -----

func TestSaveComposesKeysFromTransactionTimestamp(t *testing.T) {
	store := &fakeStore{}
	resolver := &fakeResolver{category: "Groceries"}
	s := newSaver(store, resolver)

	pk, sk, err := s.Save(context.Background(), Input{
		WaID: "123", Merchant: "Acme Foods", Total: 12.5,
		TxDate: "2025-04-24", TxTime: "13:15:35",
		Items: []string{"2 x Milk @ 1.50", "1 x Bread @ 2.00"},
		ImageID: "img-1", Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if pk != "USER#123" {
		t.Errorf("pk = %q", pk)
	}
	if sk != "RECEIPT#2025-04-24T13:15:35.000Z#12.5" {
		t.Errorf("sk = %q", sk)
	}
	if !resolver.called {
		t.Error("category resolution should run for known merchants")
	}
	if store.rec.Category != "Groceries" {
		t.Errorf("category = %q", store.rec.Category)
	}
	if store.rec.Items != "2 x Milk @ 1.50\n1 x Bread @ 2.00" {
		t.Errorf("items = %q", store.rec.Items)
	}
}

func TestSaveDateOnlyTimestamp(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(store, &fakeResolver{category: models.Unknown})

	_, sk, err := s.Save(context.Background(), Input{WaID: "1", Merchant: "Acme", Total: 5, TxDate: "2025-03-01"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if sk != "RECEIPT#2025-03-01T00:00:00.000Z#5" {
		t.Errorf("sk = %q", sk)
	}
}

func TestSaveFallsBackToNow(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(store, &fakeResolver{category: models.Unknown})

	_, sk, err := s.Save(context.Background(), Input{WaID: "1", Merchant: "Acme", Total: 7.25})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if sk != "RECEIPT#2025-04-30T12:00:00.000Z#7.25" {
		t.Errorf("sk = %q", sk)
	}
	if store.rec.TxDate != models.Unknown || store.rec.TxTime != models.Unknown {
		t.Errorf("sentinels not applied: %q %q", store.rec.TxDate, store.rec.TxTime)
	}
}

func TestSaveSkipsResolutionForUnknownMerchant(t *testing.T) {
	store := &fakeStore{}
	resolver := &fakeResolver{category: "ShouldNotBeUsed"}
	s := newSaver(store, resolver)

	if _, _, err := s.Save(context.Background(), Input{WaID: "1", Merchant: models.Unknown, Total: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if resolver.called {
		t.Error("resolution must be skipped for UNKNOWN merchant")
	}
	if store.rec.Category != models.Unknown {
		t.Errorf("category = %q", store.rec.Category)
	}
}

func TestSaveStoresLookupInfo(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(store, &fakeResolver{category: "Electronics", info: &merchant.Lookup{URL: "https://acme.com"}})

	if _, _, err := s.Save(context.Background(), Input{WaID: "1", Merchant: "Acme", Total: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(store.rec.MerchantInfo, "https://acme.com") {
		t.Errorf("merchantInfo = %q", store.rec.MerchantInfo)
	}
}

func TestSaveWriteFailurePropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("throughput exceeded")}
	s := newSaver(store, &fakeResolver{category: models.Unknown})

	if _, _, err := s.Save(context.Background(), Input{WaID: "1", Merchant: "Acme", Total: 3}); err == nil {
		t.Fatal("expected write failure to propagate")
	}
}

func TestTimestampComposition(t *testing.T) {
	now := time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name, date, time, want string
	}{
		{"date and time", "2025-04-24", "13:15:35", "2025-04-24T13:15:35.000Z"},
		{"date only", "2025-04-24", "", "2025-04-24T00:00:00.000Z"},
		{"unparseable time falls back to date", "2025-04-24", "quarter past", "2025-04-24T00:00:00.000Z"},
		{"nothing extracted falls back to now", "", "", "2025-04-30T12:00:00.000Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Timestamp(tc.date, tc.time, now); got != tc.want {
				t.Errorf("Timestamp(%q, %q) = %q, want %q", tc.date, tc.time, got, tc.want)
			}
		})
	}
}
