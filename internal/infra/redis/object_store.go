package redis

import (
	"context"
	"time"

	"social-export/internal/domain"
	"social-export/internal/domain/ports/adapter"
)

const artifactKeyPrefix = "artifact:"

var _ adapter.ObjectStore = (*ObjectStore)(nil)

// ObjectStore keeps artifact blobs in a redis hash per key: the body plus its
// metadata, written with one HSET so readers never see a half-written object.
type ObjectStore struct {
	client RedisClient
	ttl    time.Duration
}

// NewObjectStore keeps objects for ttl; ttl <= 0 keeps them until overwritten.
func NewObjectStore(client RedisClient, ttl time.Duration) *ObjectStore {
	return &ObjectStore{client: client, ttl: ttl}
}

func (s *ObjectStore) Put(ctx context.Context, key string, body []byte, meta adapter.ObjectMetadata) error {
	if s == nil || s.client == nil {
		return domain.ErrStorageUnavailable
	}
	k := artifactKeyPrefix + key
	if err := s.client.HSet(ctx, k, map[string]interface{}{
		"body":          body,
		"content_type":  meta.ContentType,
		"cache_control": meta.CacheControl,
	}); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, k, s.ttl)
	}
	// clear any expiry left by an earlier write
	return s.client.Persist(ctx, k)
}

func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, adapter.ObjectMetadata, error) {
	if s == nil || s.client == nil {
		return nil, adapter.ObjectMetadata{}, domain.ErrStorageUnavailable
	}
	fields, err := s.client.HGetAll(ctx, artifactKeyPrefix+key)
	if err != nil {
		return nil, adapter.ObjectMetadata{}, err
	}
	body, ok := fields["body"]
	if !ok {
		return nil, adapter.ObjectMetadata{}, domain.ErrNotFound
	}
	return []byte(body), adapter.ObjectMetadata{
		ContentType:  fields["content_type"],
		CacheControl: fields["cache_control"],
	}, nil
}
