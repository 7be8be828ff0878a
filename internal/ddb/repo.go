// Package ddb provides the DynamoDB repository backing the receipt pipelines.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/receiptly/whatsapp-receipts-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Sentinel errors for uniqueness violations surfaced to the pipelines.
var (
	ErrDuplicateImage   = errors.New("image fingerprint already recorded")
	ErrDuplicateReceipt = errors.New("receipt already recorded")
)

// Tables names every table the repository touches.
type Tables struct {
	Messages   string
	Images     string
	Receipts   string
	Users      string
	Memory     string
	Categories string
}

// Repo wraps a DynamoDB client and the table set for pipeline operations.
type Repo struct {
	DB     *dynamodb.Client
	Tables Tables
}

// PutMessage logs an inbound message with status RECEIVED.
func (r *Repo) PutMessage(ctx context.Context, rec models.MessageRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.Tables.Messages,
		Item:      item,
	})
	return err
}

// MarkMessageProcessed advances a message to OCR_PROCESSED and attaches the
// resulting receipt's keys. Called at most once per message.
func (r *Repo) MarkMessageProcessed(ctx context.Context, pk, sk, imageID, receiptPK, receiptSK string) error {
	_, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &r.Tables.Messages,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: awsStr("SET #status = :status, imageId = :imageId, receiptRefPk = :receiptRefPk, receiptRefSk = :receiptRefSk"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":       &types.AttributeValueMemberS{Value: string(models.StatusOCRProcessed)},
			":imageId":      &types.AttributeValueMemberS{Value: imageID},
			":receiptRefPk": &types.AttributeValueMemberS{Value: receiptPK},
			":receiptRefSk": &types.AttributeValueMemberS{Value: receiptSK},
		},
	})
	return err
}

// InsertFingerprint records an image hash, failing with ErrDuplicateImage if
// any user has submitted the same bytes before. The conditional write makes
// the existence check and the insert a single atomic operation.
func (r *Repo) InsertFingerprint(ctx context.Context, fp models.ImageFingerprint) error {
	item, err := attributevalue.MarshalMap(fp)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Tables.Images,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(imageHash)"),
	})
	if isConditionalFailure(err) {
		return ErrDuplicateImage
	}
	return err
}

// GetReceipt fetches a receipt by its composite key, returning nil when absent.
func (r *Repo) GetReceipt(ctx context.Context, pk, sk string) (*models.Receipt, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Tables.Receipts,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec models.Receipt
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutReceipt writes a receipt, ensuring no receipt with the same
// (owner, timestamp, total) key exists.
func (r *Repo) PutReceipt(ctx context.Context, rec models.Receipt) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Tables.Receipts,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if isConditionalFailure(err) {
		return ErrDuplicateReceipt
	}
	return err
}

// QueryReceipts executes an LLM-authored query plan against the caller's
// partition. The key condition must bind the partition through the literal
// `pk = :pk` form and the :pk value is always overwritten with the caller's
// own partition key, so a plan can never read another user's receipts no
// matter what partition value or placeholder the model emitted.
func (r *Repo) QueryReceipts(ctx context.Context, waID string, plan QueryPlan) ([]models.Receipt, error) {
	if !strings.Contains(plan.KeyConditionExpression, "pk = :pk") {
		return nil, fmt.Errorf("query plan key condition %q is not scoped by pk = :pk", plan.KeyConditionExpression)
	}
	values, err := plan.AttributeValues()
	if err != nil {
		return nil, err
	}
	values[":pk"] = &types.AttributeValueMemberS{Value: models.UserPK(waID)}
	in := &dynamodb.QueryInput{
		TableName:                 &r.Tables.Receipts,
		KeyConditionExpression:    &plan.KeyConditionExpression,
		ExpressionAttributeValues: values,
	}
	if len(plan.ExpressionAttributeNames) > 0 {
		in.ExpressionAttributeNames = plan.ExpressionAttributeNames
	}
	if plan.FilterExpression != "" {
		in.FilterExpression = &plan.FilterExpression
	}
	out, err := r.DB.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	var recs []models.Receipt
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// GetUser fetches the per-sender profile, returning nil when absent.
func (r *Repo) GetUser(ctx context.Context, waID string) (*models.User, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Tables.Users,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: waID},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var u models.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser creates the profile on first contact. An existing profile is
// left untouched.
func (r *Repo) EnsureUser(ctx context.Context, u models.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Tables.Users,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(pk)"),
	})
	if isConditionalFailure(err) {
		return nil
	}
	return err
}

// GetCategory returns the locally stored spend category for a merchant, or
// the empty string when the merchant is unknown.
func (r *Repo) GetCategory(ctx context.Context, merchant string) (string, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Tables.Categories,
		Key: map[string]types.AttributeValue{
			"companyName": &types.AttributeValueMemberS{Value: merchant},
		},
	})
	if err != nil {
		return "", err
	}
	if out.Item == nil {
		return "", nil
	}
	var rec models.CategoryRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return "", err
	}
	return rec.Category, nil
}

// GetMemory returns the user's conversation history blob, empty when absent.
func (r *Repo) GetMemory(ctx context.Context, waID string) (string, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Tables.Memory,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: waID},
		},
	})
	if err != nil {
		return "", err
	}
	if out.Item == nil {
		return "", nil
	}
	var mem models.ConversationMemory
	if err := attributevalue.UnmarshalMap(out.Item, &mem); err != nil {
		return "", err
	}
	return mem.History, nil
}

// PutMemory overwrites the user's conversation history blob.
func (r *Repo) PutMemory(ctx context.Context, waID, history string) error {
	item, err := attributevalue.MarshalMap(models.ConversationMemory{PK: waID, History: history})
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.Tables.Memory,
		Item:      item,
	})
	return err
}

// awsStr is a helper to get a pointer to a string literal.
func awsStr(s string) *string { return &s }

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
