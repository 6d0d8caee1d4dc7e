package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rental-gate-api/internal/domain"
)

// EntitlementRepo provides typed DynamoDB operations for the entitlements table.
// PK: user_video ("<userId>#<videoId>"), SK: entitlement_id (ULID). The ULID
// sort key orders rows by creation time, so the newest row for a pair is the
// last one in key order.
type EntitlementRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewEntitlementRepo(client *dynamodb.Client, tableName string) *EntitlementRepo {
	return &EntitlementRepo{client: client, tableName: tableName}
}

func (r *EntitlementRepo) Put(ctx context.Context, e *domain.Entitlement) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal entitlement: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Latest returns the most recently created entitlement for the pair, or
// ErrNotFound. This descending-ULID read is the authoritative ("last write
// wins") view that makes duplicate issuance from a webhook/poll race safe.
func (r *EntitlementRepo) Latest(ctx context.Context, userID, videoID string) (*domain.Entitlement, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_video = :uv"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uv": &types.AttributeValueMemberS{Value: domain.UserVideoKey(userID, videoID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("entitlement not found: %w", domain.ErrNotFound)
	}
	var e domain.Entitlement
	if err := attributevalue.UnmarshalMap(out.Items[0], &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ExpireLapsed marks active rows for the pair whose window already lapsed as
// expired. Currently valid rows are left alone; the ledger never silently
// shortens a live grant here.
func (r *EntitlementRepo) ExpireLapsed(ctx context.Context, userID, videoID string, now time.Time) error {
	rows, err := r.listByPair(ctx, userID, videoID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range rows {
		if e.Status != domain.EntitlementActive || e.ExpiresAt.After(now) {
			continue
		}
		if err := r.setStatus(ctx, e.UserVideo, e.EntitlementID, domain.EntitlementExpired, nil); err != nil {
			slog.Warn("failed to expire lapsed entitlement", "entitlement_id", e.EntitlementID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RevokeByPayment force-expires active rows sourced from the given payment,
// clamping expires_at to min(expires_at, now). Used for refunds. Missing rows
// are not an error.
func (r *EntitlementRepo) RevokeByPayment(ctx context.Context, paymentID string, now time.Time) error {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("source_payment_id-index"),
		KeyConditionExpression: aws.String("source_payment_id = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: paymentID},
		},
	})
	if err != nil {
		return err
	}
	var rows []domain.Entitlement
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return err
	}
	var firstErr error
	for _, e := range rows {
		if e.Status != domain.EntitlementActive {
			continue
		}
		clamped := e.ExpiresAt
		if now.Before(clamped) {
			clamped = now
		}
		if err := r.setStatus(ctx, e.UserVideo, e.EntitlementID, domain.EntitlementExpired, &clamped); err != nil {
			slog.Warn("failed to revoke entitlement", "entitlement_id", e.EntitlementID, "payment_id", paymentID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *EntitlementRepo) listByPair(ctx context.Context, userID, videoID string) ([]domain.Entitlement, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_video = :uv"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uv": &types.AttributeValueMemberS{Value: domain.UserVideoKey(userID, videoID)},
		},
	})
	if err != nil {
		return nil, err
	}
	var rows []domain.Entitlement
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EntitlementRepo) setStatus(ctx context.Context, userVideo, entitlementID, status string, expiresAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt.UTC()
	}
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey("user_video", userVideo, "entitlement_id", entitlementID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}
