package ddb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestAttributeValuesPrimitives(t *testing.T) {
	plan := QueryPlan{ExpressionAttributeValues: map[string]any{
		":pk":     "USER#123",
		":min":    float64(25),
		":exact":  12.5,
		":active": true,
	}}

	got, err := plan.AttributeValues()
	if err != nil {
		t.Fatalf("AttributeValues: %v", err)
	}
	if s, ok := got[":pk"].(*types.AttributeValueMemberS); !ok || s.Value != "USER#123" {
		t.Errorf(":pk = %#v", got[":pk"])
	}
	if n, ok := got[":min"].(*types.AttributeValueMemberN); !ok || n.Value != "25" {
		t.Errorf(":min = %#v", got[":min"])
	}
	if n, ok := got[":exact"].(*types.AttributeValueMemberN); !ok || n.Value != "12.5" {
		t.Errorf(":exact = %#v", got[":exact"])
	}
	if b, ok := got[":active"].(*types.AttributeValueMemberBOOL); !ok || !b.Value {
		t.Errorf(":active = %#v", got[":active"])
	}
}

func TestAttributeValuesTaggedShape(t *testing.T) {
	// Models sometimes emit the DynamoDB wire format instead of primitives.
	var plan QueryPlan
	raw := `{
		"KeyConditionExpression": "pk = :pk",
		"ExpressionAttributeValues": {
			":pk": {"S": "USER#123"},
			":n1": {"N": "42"},
			":n2": {"N": 42.5}
		}
	}`
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := plan.AttributeValues()
	if err != nil {
		t.Fatalf("AttributeValues: %v", err)
	}
	if s, ok := got[":pk"].(*types.AttributeValueMemberS); !ok || s.Value != "USER#123" {
		t.Errorf(":pk = %#v", got[":pk"])
	}
	if n, ok := got[":n1"].(*types.AttributeValueMemberN); !ok || n.Value != "42" {
		t.Errorf(":n1 = %#v", got[":n1"])
	}
	if n, ok := got[":n2"].(*types.AttributeValueMemberN); !ok || n.Value != "42.5" {
		t.Errorf(":n2 = %#v", got[":n2"])
	}
}

func TestAttributeValuesRejectsUnsupported(t *testing.T) {
	plans := []QueryPlan{
		{ExpressionAttributeValues: map[string]any{":v": []any{"a"}}},
		{ExpressionAttributeValues: map[string]any{":v": map[string]any{"SS": []any{"a"}}}},
		{ExpressionAttributeValues: map[string]any{":v": nil}},
	}
	for i, plan := range plans {
		if _, err := plan.AttributeValues(); err == nil {
			t.Errorf("plan %d: expected error", i)
		}
	}
}

func TestQueryReceiptsRejectsUnscopedPlan(t *testing.T) {
	r := &Repo{}
	plans := []QueryPlan{
		{KeyConditionExpression: "userPk = :userPk", ExpressionAttributeValues: map[string]any{":userPk": "USER#999"}},
		{KeyConditionExpression: "pk = :p", ExpressionAttributeValues: map[string]any{":p": "USER#999"}},
		{},
	}
	for i, plan := range plans {
		if _, err := r.QueryReceipts(context.Background(), "123", plan); err == nil {
			t.Errorf("plan %d: expected unscoped plan to be rejected", i)
		}
	}
}
