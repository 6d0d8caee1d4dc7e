package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rental-gate-api/internal/domain"
)

// VideoRepo provides typed DynamoDB operations for the videos table. The
// rental flow only needs pricing facts from it; catalog management is owned
// by another system writing to the same table.
type VideoRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVideoRepo(client *dynamodb.Client, tableName string) *VideoRepo {
	return &VideoRepo{client: client, tableName: tableName}
}

func (r *VideoRepo) Get(ctx context.Context, videoID string) (*domain.Video, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("video_id", videoID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("video not found: %w", domain.ErrNotFound)
	}
	var v domain.Video
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VideoRepo) Put(ctx context.Context, v *domain.Video) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal video: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}
