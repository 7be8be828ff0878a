// Package models defines the data models used in the application.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Unknown is the sentinel stored when OCR could not extract a field.
const Unknown = "UNKNOWN"

// MessageStatus represents the processing status of an inbound message.
type MessageStatus string

// Possible values for MessageStatus
const (
	StatusReceived     MessageStatus = "RECEIVED"
	StatusOCRProcessed MessageStatus = "OCR_PROCESSED"
)

// MessageRecord is the persisted audit log of one inbound WhatsApp message.
type MessageRecord struct {
	// DynamoDB keys
	PK string `dynamodbav:"pk"` // USER#<waId>
	SK string `dynamodbav:"sk"` // MESSAGE#<RFC3339Nano>#<messageId>

	UserPK     string        `dynamodbav:"userPk"`
	Status     MessageStatus `dynamodbav:"status"`
	RawMessage string        `dynamodbav:"rawMessage"`

	// Set once processing has produced a receipt.
	ImageID      string `dynamodbav:"imageId,omitempty"`
	ReceiptRefPK string `dynamodbav:"receiptRefPk,omitempty"`
	ReceiptRefSK string `dynamodbav:"receiptRefSk,omitempty"`
}

// ImageFingerprint records the SHA-256 of raw image bytes. The hash is the
// partition key and is globally unique: the same photo submitted by any user
// is one physical receipt.
type ImageFingerprint struct {
	Hash            string `dynamodbav:"imageHash"`
	UserPK          string `dynamodbav:"userPk"`
	MessagePK       string `dynamodbav:"messagePk"`
	MessageSK       string `dynamodbav:"messageSk"`
	CreatedAt       int64  `dynamodbav:"createdAt"` // unix milliseconds
	WhatsAppImageID string `dynamodbav:"whatsappImageId"`
}

// Receipt is the canonical structured output of the ingestion pipeline.
// Immutable once written; at most one per (owner, transaction date, total).
type Receipt struct {
	PK string `dynamodbav:"pk"` // USER#<waId>
	SK string `dynamodbav:"sk"` // RECEIPT#<timestamp>#<total>

	UserPK           string  `dynamodbav:"userPk"`
	Merchant         string  `dynamodbav:"merchant"`
	Total            float64 `dynamodbav:"total"`
	TxDate           string  `dynamodbav:"txDate"`
	TxTime           string  `dynamodbav:"txTime"`
	Items            string  `dynamodbav:"items"` // one "<qty> x <desc> @ <price>" per line
	ImageID          string  `dynamodbav:"imageId"`
	Category         string  `dynamodbav:"category"`
	RawJSON          string  `dynamodbav:"rawJson"` // full OCR payload, audit only
	CreatedAt        int64   `dynamodbav:"createdAt"`
	OriginalCurrency string  `dynamodbav:"originalCurrency"`
	MerchantInfo     string  `dynamodbav:"merchantInfo,omitempty"`
	ForeignReceipt   bool    `dynamodbav:"foreignReceipt,omitempty"`
}

// User is the per-sender profile. The pipelines read it; account lifecycle
// is owned elsewhere.
type User struct {
	PK          string  `dynamodbav:"pk"` // bare waId
	Currency    string  `dynamodbav:"currency"`
	TrialStatus string  `dynamodbav:"trialStatus"`
	Credits     float64 `dynamodbav:"credits"`
	CreatedAt   int64   `dynamodbav:"createdAt"`
}

// ConversationMemory is the sliding-window dialogue buffer for one user.
type ConversationMemory struct {
	PK      string `dynamodbav:"pk"` // bare waId
	History string `dynamodbav:"history"`
}

// CategoryRecord maps a merchant name to a spend category.
type CategoryRecord struct {
	CompanyName string `dynamodbav:"companyName"`
	Category    string `dynamodbav:"category"`
}

// UserPK constructs the partition key shared by messages and receipts.
func UserPK(waID string) string { return fmt.Sprintf("USER#%s", waID) }

// MessageSK constructs the lexicographically sortable message sort key.
func MessageSK(t time.Time, messageID string) string {
	return fmt.Sprintf("MESSAGE#%s#%s", t.UTC().Format(time.RFC3339Nano), messageID)
}

// ReceiptSK constructs the receipt sort key from the transaction timestamp
// and the final total. Totals keep their shortest decimal form so that
// 12.50 and 12.5 collide.
func ReceiptSK(timestamp string, total float64) string {
	return fmt.Sprintf("RECEIPT#%s#%s", timestamp, FormatTotal(total))
}

// FormatTotal renders a monetary amount in its shortest round-trip form.
func FormatTotal(total float64) string {
	return strconv.FormatFloat(total, 'f', -1, 64)
}
