package repository

import (
	"context"
	"time"

	"social-export/internal/domain/model"
)

// PendingQuery selects the rows a processor run may pick up: pending rows that are
// not backing off at Now, pending rows with no attempts left, and processing rows
// whose last attempt started before StaleBefore. A pending row backs off until
// processed_at + min(MaxDelay, BaseDelay*2^(attempt_count-1)).
type PendingQuery struct {
	Limit       int
	Now         time.Time
	StaleBefore time.Time
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type ExportRequestRepository interface {
	Create(ctx context.Context, tx Tx, req *model.ExportRequest) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ExportRequest, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.ExportRequest, error)
	// ListPending returns up to q.Limit due requests, oldest first. See PendingQuery.
	ListPending(ctx context.Context, tx Tx, q PendingQuery) ([]*model.ExportRequest, error)
	Update(ctx context.Context, tx Tx, id string, patch model.ExportRequestPatch) error
	// Claim applies patch only if the row still has fromStatus and fromAttempt.
	// It returns domain.ErrConflict when another writer got there first.
	Claim(ctx context.Context, tx Tx, id string, fromStatus model.ExportStatus, fromAttempt int, patch model.ExportRequestPatch) error
}
