// Package ocr submits receipt images to Azure Document Intelligence and
// exposes the extracted field model. It also wraps the Vision tag endpoint
// used as a cheap "is this even a receipt" pre-filter.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const analyzeAPIVersion = "2023-07-31"

// Client calls the Azure endpoints with one subscription key.
type Client struct {
	HTTP           *http.Client
	Endpoint       string // Document Intelligence endpoint
	VisionEndpoint string
	Key            string

	// Poll loop bounds. Zero values fall back to 1s x 10 attempts.
	PollInterval time.Duration
	MaxPolls     int
}

// NewClient builds an OCR client with the default poll bounds.
func NewClient(httpc *http.Client, endpoint, visionEndpoint, key string) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		HTTP:           httpc,
		Endpoint:       endpoint,
		VisionEndpoint: visionEndpoint,
		Key:            key,
		PollInterval:   time.Second,
		MaxPolls:       10,
	}
}

type operation struct {
	Status        string  `json:"status"`
	AnalyzeResult *Result `json:"analyzeResult"`
}

// Analyze submits image bytes to the prebuilt receipt model and polls until
// the operation succeeds. A terminal failed status is an error immediately;
// so is exhausting MaxPolls without reaching succeeded.
func (c *Client) Analyze(ctx context.Context, image []byte) (*Result, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/prebuilt-receipt:analyze?api-version=%s", c.Endpoint, analyzeAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.Key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: analyze submit: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("ocr: analyze init failed: %s", resp.Status)
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return nil, fmt.Errorf("ocr: missing operation-location header")
	}
	return c.poll(ctx, location)
}

func (c *Client) poll(ctx context.Context, location string) (*Result, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	max := c.MaxPolls
	if max <= 0 {
		max = 10
	}

	var op operation
	for i := 0; i < max; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.Key)
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ocr: poll: %w", err)
		}
		err = json.NewDecoder(resp.Body).Decode(&op)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("ocr: poll decode: %w", err)
		}
		if op.Status == "succeeded" {
			if op.AnalyzeResult == nil {
				return nil, fmt.Errorf("ocr: succeeded without analyzeResult")
			}
			return op.AnalyzeResult, nil
		}
		if op.Status == "failed" {
			return nil, fmt.Errorf("ocr: processing failed")
		}
	}
	return nil, fmt.Errorf("ocr: processing did not succeed (last status %q)", op.Status)
}

// ClassifyTags runs the Vision tag analysis over the image and returns the
// lowercased tag names. Callers treat any error as "likely receipt"; the
// pre-filter never blocks on its own failure.
func (c *Client) ClassifyTags(ctx context.Context, image []byte) ([]string, error) {
	url := fmt.Sprintf("%s/vision/v3.2/analyze?visualFeatures=Categories,Tags", c.VisionEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.Key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: vision request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr: vision analyze failed: %s", resp.Status)
	}

	var out struct {
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ocr: vision decode: %w", err)
	}
	tags := make([]string, 0, len(out.Tags))
	for _, t := range out.Tags {
		tags = append(tags, strings.ToLower(t.Name))
	}
	return tags, nil
}

// LooksLikeReceipt reports whether the tag set contains any of the receipt
// allow-list.
func LooksLikeReceipt(tags []string) bool {
	for _, t := range tags {
		switch t {
		case "receipt", "invoice", "bill":
			return true
		}
	}
	return false
}
