package repositories

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"analysis-worker/domain"
)

type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type DynamoDBClient struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBClient(client DynamoDBAPI, tableName string) *DynamoDBClient {
	return &DynamoDBClient{
		client:    client,
		tableName: tableName,
	}
}

// RecordField sets a single attribute on the video record. Other attributes
// are left untouched, so repeating the same write is harmless.
func (d *DynamoDBClient) RecordField(ctx context.Context, key domain.RecordKey, field, value string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key.PartitionKey()},
			"sk": &types.AttributeValueMemberS{Value: key.SortKey()},
		},
		UpdateExpression: aws.String("SET #field = :value"),
		ExpressionAttributeNames: map[string]string{
			"#field": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return wrapAWSError(domain.ErrPersistence, "update "+field+" for video "+key.ContentID, err)
	}
	return nil
}
