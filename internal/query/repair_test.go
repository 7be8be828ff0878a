package query

import (
	"encoding/json"
	"testing"
)

func TestRepairQuotesBareKeys(t *testing.T) {
	in := `{TableName: "ReceiptsTable", KeyConditionExpression: "pk = :pk"}`
	out := repairJSON(in)
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("repaired JSON still invalid: %v\n%s", err, out)
	}
	if v["TableName"] != "ReceiptsTable" {
		t.Errorf("TableName = %v", v["TableName"])
	}
}

func TestRepairStripsTrailingCommas(t *testing.T) {
	in := `{"a": 1, "b": [1, 2,], }`
	out := repairJSON(in)
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("repaired JSON still invalid: %v\n%s", err, out)
	}
}

func TestRepairCombined(t *testing.T) {
	in := `{
		KeyConditionExpression: "pk = :pk AND sk BETWEEN :start AND :end",
		ExpressionAttributeValues: {
			pk: "USER#123",
			start: "RECEIPT#2025-01-01T00:00:00.000Z",
		},
	}`
	var plan struct {
		KeyConditionExpression    string         `json:"KeyConditionExpression"`
		ExpressionAttributeValues map[string]any `json:"ExpressionAttributeValues"`
	}
	if err := json.Unmarshal([]byte(repairJSON(in)), &plan); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
	if plan.ExpressionAttributeValues["pk"] != "USER#123" {
		t.Errorf("pk = %v", plan.ExpressionAttributeValues["pk"])
	}
}

func TestRepairLeavesQuotedContentAlone(t *testing.T) {
	in := `{"expr": "a BETWEEN :x AND :y"}`
	if out := repairJSON(in); out != in {
		t.Fatalf("valid JSON was altered: %s", out)
	}
}
