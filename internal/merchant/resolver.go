// Package merchant resolves a merchant name to a spend category: local
// category table first, then a web-search-driven LLM classification. Every
// failure path degrades to the UNKNOWN sentinel; the resolver never returns
// an error.
package merchant

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/receiptly/whatsapp-receipts-backend/internal/models"
	"github.com/receiptly/whatsapp-receipts-backend/internal/prompts"
)

// CategoryStore is the local merchant→category lookup.
type CategoryStore interface {
	GetCategory(ctx context.Context, merchant string) (string, error)
}

// Searcher performs a web search for a merchant name.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Completer submits a classification prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Lookup is the web-search context retained on the receipt for audit.
type Lookup struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Resolver composes the lookup chain.
type Resolver struct {
	Store  CategoryStore
	Search Searcher
	LLM    Completer
	Log    zerolog.Logger
}

// Category resolves a spend category for the merchant. The returned Lookup
// is non-nil only when a web search contributed to the classification.
func (r *Resolver) Category(ctx context.Context, merchant string) (string, *Lookup) {
	category := models.Unknown

	local, err := r.Store.GetCategory(ctx, merchant)
	if err != nil {
		r.Log.Error().Err(err).Str("merchant", merchant).Msg("category lookup failed")
	} else if local != "" {
		return local, nil
	}

	results, err := r.Search.Search(ctx, merchant)
	if err != nil {
		r.Log.Error().Err(err).Str("merchant", merchant).Msg("merchant web search failed")
		return category, nil
	}
	best := bestResult(results, merchant)
	if best == nil {
		r.Log.Info().Str("merchant", merchant).Msg("no web results for merchant")
		return category, nil
	}
	info := &Lookup{URL: best.URL, Title: best.Title, Description: best.Description}

	reply, err := r.LLM.Complete(ctx, "", prompts.MerchantCategory(merchant, info.URL, info.Description))
	if err != nil {
		r.Log.Error().Err(err).Str("merchant", merchant).Msg("merchant classification failed")
		return category, info
	}
	if trimmed := strings.TrimSpace(reply); trimmed != "" {
		category = trimmed
	}
	return category, info
}

// Score applies the fixed rubric: +2 if the result URL contains the
// merchant name, +1 if the title contains it (case-insensitive), +1 if the
// URL contains ".com".
func Score(res SearchResult, merchant string) int {
	m := strings.ToLower(merchant)
	score := 0
	if strings.Contains(res.URL, m) {
		score += 2
	}
	if strings.Contains(strings.ToLower(res.Title), m) {
		score++
	}
	if strings.Contains(res.URL, ".com") {
		score++
	}
	return score
}

// bestResult picks the highest-scoring result. The sort is stable, so the
// first result wins ties.
func bestResult(results []SearchResult, merchant string) *SearchResult {
	if len(results) == 0 {
		return nil
	}
	sorted := make([]SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Score(sorted[i], merchant) > Score(sorted[j], merchant)
	})
	return &sorted[0]
}
