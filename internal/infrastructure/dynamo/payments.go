package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rental-gate-api/internal/domain"
)

// PaymentRepo provides typed DynamoDB operations for the payments table.
// PK: gateway, SK: gateway_ref, the idempotency key for provider deliveries.
type PaymentRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPaymentRepo(client *dynamodb.Client, tableName string) *PaymentRepo {
	return &PaymentRepo{client: client, tableName: tableName}
}

// Upsert atomically inserts or updates the record keyed (gateway, gateway_ref)
// and returns the stored row. payment_id and created_at are written with
// if_not_exists, so a redelivery updates status/payload in place without
// minting a second internal id. No read-then-write: a webhook and a poll-based
// verify may both land here concurrently for the same transaction.
func (r *PaymentRepo) Upsert(ctx context.Context, p *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("gateway", p.Gateway, "gateway_ref", p.GatewayRef),
		UpdateExpression: aws.String(
			"SET payment_id = if_not_exists(payment_id, :pid), " +
				"created_at = if_not_exists(created_at, :now), " +
				"amount_cents = :amt, currency = :cur, #st = :st, " +
				"raw_payload = :raw, user_id = :uid, video_id = :vid, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{"#st": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: p.PaymentID},
			":amt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", p.AmountCents)},
			":cur": &types.AttributeValueMemberS{Value: p.Currency},
			":st":  &types.AttributeValueMemberS{Value: p.Status},
			":raw": &types.AttributeValueMemberS{Value: p.RawPayload},
			":uid": &types.AttributeValueMemberS{Value: p.UserID},
			":vid": &types.AttributeValueMemberS{Value: p.VideoID},
			":now": &types.AttributeValueMemberS{Value: now},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert payment %s/%s: %w", p.Gateway, p.GatewayRef, err)
	}
	var stored domain.PaymentRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// SetSubRef records the provider's sub-transaction reference (e.g. a payment
// intent id) used later to correlate refunds.
func (r *PaymentRepo) SetSubRef(ctx context.Context, gateway, gatewayRef, subRef string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              compositeKey("gateway", gateway, "gateway_ref", gatewayRef),
		UpdateExpression: aws.String("SET gateway_subref = :sr"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sr": &types.AttributeValueMemberS{Value: subRef},
		},
	})
	return err
}

// GetBySubRef looks up a payment by its sub-transaction reference via GSI.
func (r *PaymentRepo) GetBySubRef(ctx context.Context, gateway, subRef string) (*domain.PaymentRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("gateway_subref-index"),
		KeyConditionExpression: aws.String("gateway_subref = :sr"),
		FilterExpression:       aws.String("gateway = :gw"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sr": &types.AttributeValueMemberS{Value: subRef},
			":gw": &types.AttributeValueMemberS{Value: gateway},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("payment subref not found: %w", domain.ErrNotFound)
	}
	var p domain.PaymentRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the payment stored under (gateway, gateway_ref).
func (r *PaymentRepo) Get(ctx context.Context, gateway, gatewayRef string) (*domain.PaymentRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("gateway", gateway, "gateway_ref", gatewayRef),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("payment not found: %w", domain.ErrNotFound)
	}
	var p domain.PaymentRecord
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
