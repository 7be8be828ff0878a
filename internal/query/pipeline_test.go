package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
)

// ----- Fakes -----

type fakeCompleter struct {
	// queued replies, consumed in order
	replies []string
	errs    []error
	// captured prompts
	systems []string
	users   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	i := len(f.systems) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var reply string
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return reply, err
}

type fakeStore struct {
	queryWaID string
	queryPlan ddb.QueryPlan
	queryOut  []models.Receipt
	queryErr  error

	user    *models.User
	userErr error

	memory    string
	memoryErr error

	putMemoryHistory string
	putMemoryCalled  bool
	putMemoryErr     error
}

func (f *fakeStore) QueryReceipts(ctx context.Context, waID string, plan ddb.QueryPlan) ([]models.Receipt, error) {
	f.queryWaID = waID
	f.queryPlan = plan
	return f.queryOut, f.queryErr
}

func (f *fakeStore) GetUser(ctx context.Context, waID string) (*models.User, error) {
	return f.user, f.userErr
}

func (f *fakeStore) GetMemory(ctx context.Context, waID string) (string, error) {
	return f.memory, f.memoryErr
}

func (f *fakeStore) PutMemory(ctx context.Context, waID, history string) error {
	f.putMemoryCalled = true
	f.putMemoryHistory = history
	return f.putMemoryErr
}

type fakeNotifier struct {
	sent    []string
	sendErr error
}

func (f *fakeNotifier) SendText(ctx context.Context, phoneNumberID, to, body string) error {
	f.sent = append(f.sent, body)
	return f.sendErr
}

func newPipeline(llm *fakeCompleter, store *fakeStore, n *fakeNotifier) *Pipeline {
	return &Pipeline{
		LLM:      llm,
		Store:    store,
		Notifier: n,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC) },
	}
}

const planJSON = `{
	"KeyConditionExpression": "pk = :pk AND sk BETWEEN :start AND :end",
	"ExpressionAttributeValues": {
		":pk": "USER#123",
		":start": "RECEIPT#2025-04-23T00:00:00.000Z",
		":end": "RECEIPT#2025-04-30T23:59:59.999Z"
	}
}`

// ----- Tests -----

func TestFinanceQueryEndToEnd(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		`{"category":"finance_query","needsGraph":false}`,
		planJSON,
		"You spent 42.50 EUR on groceries last week.",
	}}
	store := &fakeStore{
		queryOut: []models.Receipt{{
			Merchant: "Acme Foods", Total: 42.5, TxDate: "2025-04-25",
			Category: "Groceries", OriginalCurrency: "EUR",
			RawJSON: `{"secret":"never shown"}`,
		}},
		user: &models.User{PK: "123", Currency: "EUR"},
	}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "How much did I spend on groceries last week?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if store.queryWaID != "123" {
		t.Errorf("query waID = %q", store.queryWaID)
	}
	if !strings.Contains(store.queryPlan.KeyConditionExpression, "BETWEEN") {
		t.Errorf("plan expression = %q", store.queryPlan.KeyConditionExpression)
	}
	// Summary prompt carries the user's currency; results never include raw OCR.
	if !strings.Contains(llm.systems[2], "EUR") {
		t.Errorf("summary system prompt missing currency: %q", llm.systems[2])
	}
	if strings.Contains(llm.users[2], "never shown") {
		t.Error("raw OCR payload leaked into summary prompt")
	}
	if len(n.sent) != 1 || n.sent[0] != "You spent 42.50 EUR on groceries last week." {
		t.Errorf("sent = %v", n.sent)
	}
	if !store.putMemoryCalled || !strings.Contains(store.putMemoryHistory, "Assistant: You spent 42.50 EUR") {
		t.Errorf("memory not updated: %q", store.putMemoryHistory)
	}
}

func TestIrrelevantMessageRedirects(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"category":"irrelevant","needsGraph":false}`}}
	store := &fakeStore{}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "hello"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(llm.users) != 1 {
		t.Errorf("expected only the triage call, got %d", len(llm.users))
	}
	if len(n.sent) != 1 || n.sent[0] != redirectReply {
		t.Errorf("sent = %v", n.sent)
	}
	if store.putMemoryCalled {
		t.Error("memory must not be updated for non-finance messages")
	}
}

func TestTriageFallsBackToRawText(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"  Irrelevant  "}}
	store := &fakeStore{}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "hi"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(n.sent) != 1 || n.sent[0] != redirectReply {
		t.Errorf("sent = %v", n.sent)
	}
}

func TestPlanRepairRecoversBareKeys(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		`{"category":"finance_query"}`,
		`{KeyConditionExpression: "pk = :pk", ExpressionAttributeValues: {":pk": "USER#123",},}`,
		"summary",
	}}
	store := &fakeStore{}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "total spend?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.queryPlan.KeyConditionExpression != "pk = :pk" {
		t.Errorf("plan = %+v", store.queryPlan)
	}
}

func TestUnrecoverablePlanAborts(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		`{"category":"finance_query"}`,
		`this is not even close to JSON`,
	}}
	store := &fakeStore{}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "total spend?"); err == nil {
		t.Fatal("expected error for unparseable plan")
	}
	if len(n.sent) != 0 {
		t.Errorf("no reply must be sent on plan failure, got %v", n.sent)
	}
	if store.putMemoryCalled {
		t.Error("memory must not be updated on plan failure")
	}
}

func TestQueryFailureAborts(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"category":"finance_query"}`, planJSON}}
	store := &fakeStore{queryErr: errors.New("throttled")}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "spend?"); err == nil {
		t.Fatal("expected error when query fails")
	}
	if len(n.sent) != 0 {
		t.Errorf("sent = %v", n.sent)
	}
}

func TestMemoryCommitsBeforeDelivery(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"category":"finance_query"}`, planJSON, "the reply"}}
	store := &fakeStore{}
	n := &fakeNotifier{sendErr: errors.New("channel down")}

	// Delivery failure is logged, not returned, and memory keeps the turn.
	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "spend?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !store.putMemoryCalled {
		t.Fatal("memory must be written even when delivery fails")
	}
	if !strings.Contains(store.putMemoryHistory, "Assistant: the reply") {
		t.Errorf("memory = %q", store.putMemoryHistory)
	}
}

func TestMemoryIncludedAsContext(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"category":"finance_query"}`, planJSON, "reply"}}
	store := &fakeStore{memory: "User: earlier\nAssistant: earlier answer"}
	n := &fakeNotifier{}

	if err := newPipeline(llm, store, n).Handle(context.Background(), "123", "line1", "spend?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(llm.systems[2], "earlier answer") {
		t.Errorf("memory not included in summary context: %q", llm.systems[2])
	}
}
