// Package query implements the conversational query pipeline: a free-text
// finance question is triaged, translated into a structured receipt query,
// executed, summarized, and remembered.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/ddb"
	"github.com/receiptly/whatsapp-receipts-backend/internal/memory"
	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
	"github.com/receiptly/whatsapp-receipts-backend/internal/prompts"
)

// redirectReply is the fixed response for anything that is not a finance
// query.
const redirectReply = `I can help with questions about your receipts and spending. Try asking something like "How much did I spend on groceries last week?"`

// Completer submits prompts to the completion capability.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Store is the slice of the repository the pipeline reads and writes.
type Store interface {
	QueryReceipts(ctx context.Context, waID string, plan ddb.QueryPlan) ([]models.Receipt, error)
	GetUser(ctx context.Context, waID string) (*models.User, error)
	GetMemory(ctx context.Context, waID string) (string, error)
	PutMemory(ctx context.Context, waID, history string) error
}

// Notifier delivers the final reply.
type Notifier interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
}

// Pipeline wires the stages together.
type Pipeline struct {
	LLM      Completer
	Store    Store
	Notifier Notifier
	Log      zerolog.Logger
	Now      func() time.Time
}

type triageResult struct {
	Category   string `json:"category"`
	NeedsGraph bool   `json:"needsGraph"`
}

// receiptView is what the summary model sees: the raw OCR payload and the
// store keys are never surfaced.
type receiptView struct {
	Merchant string  `json:"merchant"`
	Total    float64 `json:"total"`
	TxDate   string  `json:"txDate"`
	TxTime   string  `json:"txTime"`
	Items    string  `json:"items"`
	Category string  `json:"category"`
	Currency string  `json:"currency"`
}

// Handle answers one free-text message. Non-finance messages get the fixed
// redirect and no memory update. Plan or query failures return an error
// with no reply sent; the caller's reporter owns user notification.
func (p *Pipeline) Handle(ctx context.Context, waID, phoneNumberID, text string) error {
	log := p.Log.With().Str("wa_id", waID).Logger()

	// TRIAGE
	triageRaw, err := p.LLM.Complete(ctx, prompts.Triage, text)
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}
	var triage triageResult
	if err := json.Unmarshal([]byte(triageRaw), &triage); err != nil {
		// Some completions answer with the bare category word.
		triage.Category = strings.ToLower(strings.TrimSpace(triageRaw))
	}
	if triage.Category != "finance_query" {
		log.Info().Str("category", triage.Category).Msg("not a finance query, redirecting")
		if err := p.Notifier.SendText(ctx, phoneNumberID, waID, redirectReply); err != nil {
			log.Error().Err(err).Msg("redirect delivery failed")
		}
		return nil
	}
	log.Debug().Bool("needs_graph", triage.NeedsGraph).Msg("finance query accepted")

	// PLAN
	planRaw, err := p.LLM.Complete(ctx, prompts.QueryPlan(models.UserPK(waID), p.now()), text)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	plan, err := parsePlan(planRaw)
	if err != nil {
		return fmt.Errorf("plan parse: %w", err)
	}

	// EXECUTE
	results, err := p.Store.QueryReceipts(ctx, waID, plan)
	if err != nil {
		return fmt.Errorf("query receipts: %w", err)
	}

	// RESPOND
	views := make([]receiptView, 0, len(results))
	for _, r := range results {
		views = append(views, receiptView{
			Merchant: r.Merchant,
			Total:    r.Total,
			TxDate:   r.TxDate,
			TxTime:   r.TxTime,
			Items:    r.Items,
			Category: r.Category,
			Currency: r.OriginalCurrency,
		})
	}
	itemsJSON, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	userCurrency := "EUR"
	if u, err := p.Store.GetUser(ctx, waID); err != nil {
		log.Error().Err(err).Msg("failed to fetch user currency, using default")
	} else if u != nil && u.Currency != "" {
		userCurrency = u.Currency
	}

	history, err := p.Store.GetMemory(ctx, waID)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch conversation memory")
		history = ""
	}
	system := prompts.Summary(userCurrency)
	if history != "" {
		system += "\n\nRecent conversation for context:\n" + history
	}

	replyRaw, err := p.LLM.Complete(ctx, system, prompts.SummaryUser(text, string(itemsJSON)))
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	reply := strings.TrimSpace(replyRaw)

	// MEMORIZE commits before DELIVER. A delivery failure leaves memory
	// referencing a reply the user never received; accepted.
	if err := p.Store.PutMemory(ctx, waID, memory.Window(history, text, reply)); err != nil {
		log.Error().Err(err).Msg("failed to update conversation memory")
	}

	// DELIVER
	if err := p.Notifier.SendText(ctx, phoneNumberID, waID, reply); err != nil {
		log.Error().Err(err).Msg("reply delivery failed")
	}
	return nil
}

// parsePlan tries a strict parse, then one bounded repair pass.
func parsePlan(raw string) (ddb.QueryPlan, error) {
	var plan ddb.QueryPlan
	if err := json.Unmarshal([]byte(raw), &plan); err == nil {
		return plan, validatePlan(plan)
	}
	repaired := repairJSON(raw)
	if err := json.Unmarshal([]byte(repaired), &plan); err != nil {
		return ddb.QueryPlan{}, fmt.Errorf("unparseable query plan: %w", err)
	}
	return plan, validatePlan(plan)
}

func validatePlan(plan ddb.QueryPlan) error {
	if strings.TrimSpace(plan.KeyConditionExpression) == "" {
		return fmt.Errorf("query plan missing KeyConditionExpression")
	}
	return nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
