// Package secrets reads JSON secrets from AWS Secrets Manager through a
// lazy, lifetime-scoped cache. Each secret is fetched at most once per
// Lambda container.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// API is the slice of the Secrets Manager client the cache needs.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// MetaSecret carries the WhatsApp Graph API access token.
type MetaSecret struct {
	AccessToken string `json:"access_token"`
}

// AzureSecret carries the Document Intelligence and Vision credentials.
type AzureSecret struct {
	OCREndpoint    string `json:"ocr_endpoint"`
	OCRKey         string `json:"ocr_key"`
	VisionEndpoint string `json:"vision_endpoint"`
}

// OpenAISecret carries the completions API key.
type OpenAISecret struct {
	APIKey string `json:"openai_api_key"`
}

// BraveSecret carries the web search subscription token.
type BraveSecret struct {
	APIKey string `json:"brave_api_key"`
}

// ExchangeRateSecret carries the exchange-rate API key.
type ExchangeRateSecret struct {
	APIKey string `json:"api_key"`
}

// Cache is a read-through cache of secret payloads keyed by secret id.
type Cache struct {
	SM API

	mu     sync.Mutex
	values map[string][]byte
}

// NewCache wraps a Secrets Manager client.
func NewCache(sm API) *Cache {
	return &Cache{SM: sm, values: make(map[string][]byte)}
}

// JSON fetches the secret string for id and unmarshals it into v. The raw
// payload is cached for the lifetime of the process.
func (c *Cache) JSON(ctx context.Context, id string, v any) error {
	if id == "" {
		return fmt.Errorf("secrets: empty secret id")
	}
	raw, err := c.raw(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("secrets: decode %s: %w", id, err)
	}
	return nil
}

func (c *Cache) raw(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	cached, ok := c.values[id]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	out, err := c.SM.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &id})
	if err != nil {
		return nil, fmt.Errorf("secrets: fetch %s: %w", id, err)
	}
	var raw []byte
	if out.SecretString != nil {
		raw = []byte(*out.SecretString)
	}

	c.mu.Lock()
	c.values[id] = raw
	c.mu.Unlock()
	return raw, nil
}
