package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rental-gate-api/internal/domain"
)

// DynamoStore is a Store backed by a DynamoDB table with a TTL attribute.
// DynamoDB TTL deletion lags by up to 48h, so Get also checks expires_at and
// deletes expired entries itself rather than trusting the sweeper.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"kv_key": &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("key %q: %w", key, domain.ErrNotFound)
	}
	if exp, ok := out.Item["expires_at"].(*types.AttributeValueMemberN); ok {
		var unix int64
		if _, err := fmt.Sscan(exp.Value, &unix); err == nil && unix > 0 && unix <= time.Now().Unix() {
			_ = s.Delete(ctx, key)
			return nil, fmt.Errorf("key %q expired: %w", key, domain.ErrNotFound)
		}
	}
	val, ok := out.Item["kv_value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("key %q has no value: %w", key, domain.ErrNotFound)
	}
	return val.Value, nil
}

func (s *DynamoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := map[string]types.AttributeValue{
		"kv_key":   &types.AttributeValueMemberS{Value: key},
		"kv_value": &types.AttributeValueMemberB{Value: value},
	}
	if ttl > 0 {
		item["expires_at"] = &types.AttributeValueMemberN{
			Value: fmt.Sprintf("%d", time.Now().Add(ttl).Unix()),
		}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"kv_key": &types.AttributeValueMemberS{Value: key}},
	})
	return err
}
