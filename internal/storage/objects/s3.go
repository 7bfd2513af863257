package objects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

var s3Tracer = otel.Tracer("partsplit.internal.storage.objects")

// DefaultCacheControl matches the caching the landing page asked for on uploads.
const DefaultCacheControl = "max-age=3600"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "character-uploads/".
	Prefix string
	// PublicBaseURL is the CDN or bucket website origin objects resolve under.
	// When empty the virtual-hosted S3 URL for Region is used.
	PublicBaseURL string
	Region        string
	CacheControl  string
}

// S3Store uploads demo assets to a public-read bucket.
type S3Store struct {
	client S3API
	cfg    S3Config
	logger *logging.Logger
}

// NewS3Store creates a store writing to cfg.Bucket.
func NewS3Store(client S3API, cfg S3Config, logger *logging.Logger) *S3Store {
	if client == nil {
		panic("objects: s3 client required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		panic("objects: bucket required")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = DefaultCacheControl
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Store{client: client, cfg: cfg, logger: logger}
}

func (s *S3Store) objectKey(key string) string {
	return s.cfg.Prefix + key
}

// Put uploads data under key. Keys are unique per upload, so the write is unconditional.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := s3Tracer.Start(ctx, "objects.s3.put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("objects.bucket", s.cfg.Bucket),
			attribute.Int("objects.size", len(data)),
		),
	)
	defer span.End()

	if key == "" {
		return errors.New("objects: empty key")
	}
	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String(s.cfg.CacheControl),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("objects: s3 put %s: %w", objectKey, err)
	}
	s.logger.Info("uploaded asset to S3", "bucket", s.cfg.Bucket, "object_key", objectKey, "size", len(data))
	return nil
}

// Delete removes key, used to clean up uploads whose record was never stored.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("objects: s3 delete %s: %w", objectKey, err)
	}
	return nil
}

// PublicURL returns the URL key resolves to. No request is made.
func (s *S3Store) PublicURL(key string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	if base == "" {
		region := s.cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.Bucket, region)
	}
	return base + "/" + s.objectKey(key)
}

var (
	_ registration.ObjectStore   = (*S3Store)(nil)
	_ registration.ObjectDeleter = (*S3Store)(nil)
)
