package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

// dynamoAPI is the subset of *dynamodb.Client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type collectionItem struct {
	Collection string `dynamodbav:"collection"`
	Document   string `dynamodbav:"document"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// DynamoStore keeps the office collection as a single DynamoDB item whose
// partition key is the collection name.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	key       string
}

func NewDynamoStore(ctx context.Context, tableName, region string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return newDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

func newDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		key:       CollectionKey,
	}
}

func (s *DynamoStore) Load(ctx context.Context) ([]models.Office, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]dynamodbtypes.AttributeValue{
			"collection": &dynamodbtypes.AttributeValueMemberS{Value: s.key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	if result.Item == nil {
		return []models.Office{}, nil
	}

	var item collectionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", s.key, err)
	}

	var offices []models.Office
	if err := json.Unmarshal([]byte(item.Document), &offices); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.key, err)
	}
	if offices == nil {
		offices = []models.Office{}
	}
	return offices, nil
}

func (s *DynamoStore) Save(ctx context.Context, offices []models.Office) error {
	if offices == nil {
		offices = []models.Office{}
	}
	doc, err := json.Marshal(offices)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.key, err)
	}

	item, err := attributevalue.MarshalMap(collectionItem{
		Collection: s.key,
		Document:   string(doc),
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s to DynamoDB: %w", s.key, err)
	}
	return nil
}

func (s *DynamoStore) Close() error {
	return nil
}
