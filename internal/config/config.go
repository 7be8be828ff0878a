// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Env holds the configuration values for the application.
type Env struct {
	Region string

	// DynamoDB tables
	MessagesTable string
	ImagesTable   string
	ReceiptsTable string
	UsersTable    string
	MemoryTable   string
	CategoryTable string

	// Secrets Manager secret ids
	MetaSecretID         string
	AzureSecretID        string
	OpenAISecretID       string
	BraveSecretID        string
	ExchangeRateSecretID string

	// SQS queues
	ImageQueueURL     string
	TextQueueURL      string
	HeartbeatQueueURL string

	// Meta webhook
	VerifyToken  string
	GraphVersion string

	OpenAIModel string

	LogLevel  string
	LogPretty bool
}

// MustLoad reads the environment variables and returns an Env struct.
// A .env file is honored when present so workers can run locally. Each
// Lambda passes the keys it cannot run without; a missing one panics.
func MustLoad(required ...string) Env {
	_ = godotenv.Load()
	for _, k := range required {
		must(k)
	}

	return Env{
		Region: get("AWS_REGION", "us-east-1"),

		MessagesTable: get("MESSAGES_TABLE", "MessagesTable"),
		ImagesTable:   get("IMAGES_TABLE", "ImagesTable"),
		ReceiptsTable: get("RECEIPTS_TABLE", "ReceiptsTable"),
		UsersTable:    get("USERS_TABLE", "UsersTable"),
		MemoryTable:   get("MEMORY_TABLE", "MemoryTable"),
		CategoryTable: get("CATEGORY_TABLE", "CategoryTable"),

		MetaSecretID:         get("META_SECRET_ID", "MetaSecrets"),
		AzureSecretID:        get("AZURE_SECRET_ID", "AzureSecrets"),
		OpenAISecretID:       get("OPENAI_SECRET_ID", "OpenAISecrets"),
		BraveSecretID:        get("BRAVE_SECRET_ID", "BraveSecrets"),
		ExchangeRateSecretID: get("EXCHANGE_RATE_SECRET_ID", "ExchangeRateSecrets"),

		ImageQueueURL:     get("IMAGE_QUEUE_URL", ""),
		TextQueueURL:      get("TEXT_QUEUE_URL", ""),
		HeartbeatQueueURL: get("HEARTBEAT_QUEUE_URL", ""),

		VerifyToken:  get("META_VERIFY_TOKEN", ""),
		GraphVersion: get("META_GRAPH_VERSION", "v17.0"),

		OpenAIModel: get("OPENAI_MODEL", "gpt-3.5-turbo"),

		LogLevel:  get("LOG_LEVEL", "info"),
		LogPretty: get("LOG_PRETTY", "") == "true",
	}
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// must returns the value of the environment variable k or panics if not set.
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return v
}
