package adapter

import "context"

type ObjectMetadata struct {
	ContentType  string
	CacheControl string
}

// ObjectStore persists artifact blobs under caller-chosen keys. Put overwrites.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, meta ObjectMetadata) error
	Get(ctx context.Context, key string) ([]byte, ObjectMetadata, error)
}
