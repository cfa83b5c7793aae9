package adapter

import (
	"context"
	"time"
)

// RateScopeExportEnqueue limits how often one user may queue an export.
const RateScopeExportEnqueue = "exports"

// RateLimiter counts hits by subject within scope inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error)
}
