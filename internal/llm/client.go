// Package llm is a minimal OpenAI chat-completions client. Callers own all
// response-format enforcement and repair.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is the OpenAI API host.
const DefaultBaseURL = "https://api.openai.com"

// Client submits prompts to the completions API.
type Client struct {
	HTTP    *http.Client
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
}

// NewClient builds a completions client.
func NewClient(httpc *http.Client, apiKey, model string) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{HTTP: httpc, APIKey: apiKey, Model: model, BaseURL: DefaultBaseURL}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends an optional system prompt plus a user prompt and returns
// the first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var msgs []chatMessage
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	payload, err := json.Marshal(map[string]any{
		"model":    c.Model,
		"messages": msgs,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: completion request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm: completion failed: %s: %s", resp.Status, string(b))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: completion decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
