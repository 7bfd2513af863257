package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

type fakeDynamo struct {
	inputs []*dynamodb.PutItemInput
	err    error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore_Insert(t *testing.T) {
	fake := &fakeDynamo{}
	store := NewDynamoStore(fake, "registrations", nil)
	created := time.Date(2026, 10, 2, 3, 4, 5, 0, time.UTC)

	err := store.Insert(context.Background(), registration.Record{
		ID:        "rec-1",
		Kind:      registration.KindEarlyAccess,
		Phone:     "01012345678",
		CreatedAt: created,
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "registrations", aws.ToString(in.TableName))
	assert.Equal(t, "attribute_not_exists(id)", aws.ToString(in.ConditionExpression))

	var item dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(in.Item, &item))
	assert.Equal(t, "rec-1", item.ID)
	assert.Equal(t, "early_access", item.Type)
	assert.Equal(t, "01012345678", item.Phone)
	assert.Empty(t, item.Email)
	assert.Equal(t, created.Format(time.RFC3339Nano), item.CreatedAt)
	_, hasEmail := in.Item["email"]
	assert.False(t, hasEmail, "empty fields are omitted")
}

func TestDynamoStore_InsertError(t *testing.T) {
	cause := errors.New("ConditionalCheckFailedException")
	store := NewDynamoStore(&fakeDynamo{err: cause}, "registrations", nil)
	err := store.Insert(context.Background(), registration.Record{ID: "rec-1", Kind: registration.KindEarlyAccess})
	assert.ErrorIs(t, err, cause)
}

func TestDynamoStore_RequiresID(t *testing.T) {
	store := NewDynamoStore(&fakeDynamo{}, "registrations", nil)
	assert.Error(t, store.Insert(context.Background(), registration.Record{}))
}
