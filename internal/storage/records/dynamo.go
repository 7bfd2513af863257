package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the DynamoDB shape of a registration.
type dynamoItem struct {
	ID        string `dynamodbav:"id"`
	Type      string `dynamodbav:"type"`
	Email     string `dynamodbav:"email,omitempty"`
	Phone     string `dynamodbav:"phone,omitempty"`
	ImageURL  string `dynamodbav:"image_url,omitempty"`
	CreatedAt string `dynamodbav:"created_at"`
}

// DynamoStore stores registrations in a DynamoDB table keyed by id.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client DynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("records: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("records: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

// Insert puts the record, refusing to overwrite an existing id.
func (s *DynamoStore) Insert(ctx context.Context, rec registration.Record) error {
	if rec.ID == "" {
		return errors.New("records: record id required")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:        rec.ID,
		Type:      string(rec.Kind),
		Email:     rec.Email,
		Phone:     rec.Phone,
		ImageURL:  rec.ImageURL,
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("records: failed to marshal registration: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("records: failed to persist registration: %w", err)
	}
	s.logger.Debug("registration stored in dynamodb", "record_id", rec.ID, "table", s.tableName)
	return nil
}

var _ registration.RecordStore = (*DynamoStore)(nil)
