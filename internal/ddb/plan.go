package ddb

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// QueryPlan is the structured query descriptor authored by the completion
// capability. Field names follow the DynamoDB QueryCommand parameter object
// the model is prompted to emit.
type QueryPlan struct {
	TableName                 string            `json:"TableName,omitempty"`
	KeyConditionExpression    string            `json:"KeyConditionExpression"`
	FilterExpression          string            `json:"FilterExpression,omitempty"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]any    `json:"ExpressionAttributeValues"`
}

// AttributeValues converts the plan's primitive condition values into typed
// DynamoDB attribute values. Models sometimes emit the wire-format tagged
// shape ({"S": "..."} / {"N": "..."}) instead of bare primitives; both are
// accepted.
func (p QueryPlan) AttributeValues() (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(p.ExpressionAttributeValues))
	for k, v := range p.ExpressionAttributeValues {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'f', -1, 64)}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case map[string]any:
		if s, ok := val["S"].(string); ok && len(val) == 1 {
			return &types.AttributeValueMemberS{Value: s}, nil
		}
		if n, ok := val["N"]; ok && len(val) == 1 {
			switch num := n.(type) {
			case string:
				return &types.AttributeValueMemberN{Value: num}, nil
			case float64:
				return &types.AttributeValueMemberN{Value: strconv.FormatFloat(num, 'f', -1, 64)}, nil
			}
		}
		return nil, fmt.Errorf("unsupported tagged value %v", val)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
