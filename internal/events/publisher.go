package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

const publishTimeout = 5 * time.Second

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher forwards successful registrations to an SQS queue so
// downstream jobs (sample generation, CRM sync) can pick them up.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
	now      func() time.Time
	logger   *logging.Logger
}

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client sqsAPI, queueURL string, logger *logging.Logger) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, now: time.Now, logger: logger}
}

// Publish sends one registration.created event.
func (p *SQSPublisher) Publish(ctx context.Context, outcome registration.Outcome) error {
	evt := RegistrationCreated{
		EventID:    uuid.NewString(),
		EventType:  EventTypeRegistrationCreated,
		Record:     outcome.Record,
		AssetKey:   outcome.AssetKey,
		Confirmed:  outcome.Confirmed,
		OccurredAt: p.now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(evt.EventType)},
			"kind":       {DataType: aws.String("String"), StringValue: aws.String(string(outcome.Record.Kind))},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// OnSuccess publishes the outcome; a queue failure never fails the registration.
func (p *SQSPublisher) OnSuccess(ctx context.Context, outcome registration.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, outcome); err != nil {
		p.logger.Warn("registration event not published", "record_id", outcome.Record.ID, "error", err)
		return
	}
	p.logger.Debug("registration event published", "record_id", outcome.Record.ID)
}

// OnError is a no-op; failed submissions are not forwarded.
func (p *SQSPublisher) OnError(context.Context, error) {}

var _ registration.Listener = (*SQSPublisher)(nil)
