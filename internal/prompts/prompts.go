// Package prompts centralizes the completion prompt templates used by the
// pipelines.
package prompts

import (
	"fmt"
	"time"
)

// Triage is the system instruction for first-stage message classification.
const Triage = `You are a classifier for a receipt assistant.

First, classify the user's message as one of:
- finance_query
- system_command
- irrelevant

Then, answer: could the request benefit from a visual/graph/summary that could be shown as a chart?

Return JSON like:
{ "category": "finance_query", "needsGraph": true }`

// QueryPlan instructs the model to translate a question into a DynamoDB
// query parameter object scoped to the given partition key value.
func QueryPlan(pkValue string, now time.Time) string {
	return fmt.Sprintf(`Translate the user question into a DynamoDB QueryCommand parameter object.
The table is "ReceiptsTable" with primary key "pk" and sort key "sk".
- "pk" is of the form "%s".
- "sk" starts with "RECEIPT#<ISO timestamp>#<amount>", e.g., "RECEIPT#2025-04-24T13:15:35.264Z#20.99".

The current date is "%s".

When the user query references a time period (e.g. "last week", "yesterday", "March"),
generate a KeyConditionExpression that includes a BETWEEN clause on the sort key using ISO 8601 timestamps.

Respond ONLY with valid, comment-free JSON that can be parsed directly.
Do NOT include any explanations or inline comments.`, pkValue, now.UTC().Format(time.RFC3339))
}

// Summary is the system prompt for the conversational answer, denominated
// in the user's currency.
func Summary(userCurrency string) string {
	return fmt.Sprintf(`You are a helpful assistant that summarizes receipt data in a friendly,
conversational tone. Present all monetary values using the %s currency.`, userCurrency)
}

// SummaryUser builds the user message for the final summary step.
func SummaryUser(question, itemsJSON string) string {
	return fmt.Sprintf(`Here is the user question: "%s"

Here are the results from the database: %s

Write a friendly, conversational summary.`, question, itemsJSON)
}

// MerchantCategory embeds web-search context to classify a merchant into a
// spend category. The model must answer with the bare category name.
func MerchantCategory(merchant, url, description string) string {
	return fmt.Sprintf(`You are an assistant that classifies merchants into spending categories such as
"Groceries", "Restaurants", "Electronics", "Clothing", "Pharmacy", etc.

Merchant Name: %s
Official Website: %s
Summary: %s

Please infer the most appropriate spending category for this merchant.
Respond with only the category name, no explanation.`, merchant, url, description)
}
