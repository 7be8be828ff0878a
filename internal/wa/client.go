// Package wa is a thin client for the Meta WhatsApp Graph API: resolving
// and downloading media, and sending text replies.
package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is the Graph API host.
const DefaultBaseURL = "https://graph.facebook.com"

// Client calls the Graph API on behalf of one access token.
type Client struct {
	HTTP         *http.Client
	AccessToken  string
	GraphVersion string // e.g. v17.0
	BaseURL      string // overridable for tests
}

// NewClient builds a Graph client with the default base URL.
func NewClient(httpc *http.Client, accessToken, graphVersion string) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{HTTP: httpc, AccessToken: accessToken, GraphVersion: graphVersion, BaseURL: DefaultBaseURL}
}

// MediaURL resolves a provider media id to a one-time signed download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s?fields=url", c.BaseURL, c.GraphVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("wa: media url request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("wa: media url decode: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("wa: no download url for media %s (status %d)", mediaID, resp.StatusCode)
	}
	return out.URL, nil
}

// Download fetches the media bytes from a signed URL. The CDN requires the
// same bearer token as the Graph API.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wa: media download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wa: media download failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// SendText delivers a text message to a recipient over the given phone line.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) error {
	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.GraphVersion, phoneNumberID)
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"text":              map[string]string{"body": body},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("wa: send text: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("wa: send text failed: %s: %s", resp.Status, string(b))
	}
	return nil
}
