package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultRateBaseURL is the exchangerate-api v6 host.
const DefaultRateBaseURL = "https://v6.exchangerate-api.com/v6"

// RateClient fetches pair conversion rates.
type RateClient struct {
	HTTP    *http.Client
	APIKey  string
	BaseURL string // overridable for tests
}

// NewRateClient builds a RateClient with the default base URL.
func NewRateClient(httpc *http.Client, apiKey string) *RateClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &RateClient{HTTP: httpc, APIKey: apiKey, BaseURL: DefaultRateBaseURL}
}

// Pair returns how many units of to equal one unit of from.
func (c *RateClient) Pair(ctx context.Context, from, to string) (float64, error) {
	url := fmt.Sprintf("%s/%s/pair/%s/%s", c.BaseURL, c.APIKey, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("currency: rate fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("currency: rate fetch failed: %s", resp.Status)
	}

	var out struct {
		ConversionRate *float64 `json:"conversion_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("currency: rate decode: %w", err)
	}
	if out.ConversionRate == nil {
		return 0, fmt.Errorf("currency: conversion_rate missing in response")
	}
	return *out.ConversionRate, nil
}
