package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

const (
	keyPrefix  = "preview:"
	defaultTTL = 30 * time.Minute
)

// RedisStore keeps asset previews in Redis so any API replica can serve them.
// Entries expire after the TTL even when a release is missed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a preview store. ttl <= 0 uses the default.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("preview: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func previewKey(ref string) string {
	return keyPrefix + ref
}

// Create stores data and returns a fresh reference.
func (s *RedisStore) Create(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := uuid.NewString()
	key := previewKey(ref)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "content_type", contentType, "data", data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("preview: store %s: %w", ref, err)
	}
	return ref, nil
}

// Get returns the preview bytes and content type.
func (s *RedisStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	values, err := s.client.HGetAll(ctx, previewKey(ref)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("preview: load %s: %w", ref, err)
	}
	data, ok := values["data"]
	if !ok {
		return nil, "", registration.ErrPreviewNotFound
	}
	return []byte(data), values["content_type"], nil
}

// Release deletes the preview.
func (s *RedisStore) Release(ctx context.Context, ref string) error {
	n, err := s.client.Del(ctx, previewKey(ref)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("preview: release %s: %w", ref, err)
	}
	if n == 0 {
		return registration.ErrPreviewNotFound
	}
	return nil
}

var _ registration.PreviewStore = (*RedisStore)(nil)
