package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"social-export/internal/domain"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/domain/ports/repository"
	"social-export/internal/infra/logging"
	"social-export/internal/infra/metrics"
)

// Compile-time check
var _ ExportUseCase = (*exportUC)(nil)

const processLockKey = "exports:process"

type EnqueueInput struct {
	Format      string
	Options     model.ExportOptions
	MaxAttempts int
}

type RetryInput struct {
	ResetAttempts bool
	MaxAttempts   *int
}

type ExportUseCase interface {
	// Enqueue creates a pending export request owned by userID.
	Enqueue(ctx context.Context, userID string, in EnqueueInput) (*model.ExportRequest, error)
	// List returns the caller's requests, newest first.
	List(ctx context.Context, userID string) ([]*model.ExportRequest, error)
	// Get returns one request; ErrForbidden when it belongs to someone else.
	Get(ctx context.Context, userID, id string) (*model.ExportRequest, error)
	// ListForUser is the administrative view of any user's requests.
	ListForUser(ctx context.Context, userID string) ([]*model.ExportRequest, error)
	// AdminRetry reopens a request for processing.
	AdminRetry(ctx context.Context, id string, in RetryInput) (*model.ExportRequest, error)
	// ProcessQueue runs one processor invocation under the process-wide lock.
	ProcessQueue(ctx context.Context, batchSize int) (BatchResult, error)
	// OpenArtifact streams a stored artifact to its owner or an administrator.
	OpenArtifact(ctx context.Context, callerID string, isAdmin bool, key string) ([]byte, adapter.ObjectMetadata, error)
}

type ExportUCConfig struct {
	Formats        []string
	DefaultMax     int
	EnqueueLimit   int
	EnqueueWindow  time.Duration
	ProcessLockTTL time.Duration
}

type exportUC struct {
	repo      repository.ExportRequestRepository
	processor *ExportProcessor
	writer    *ArtifactWriter
	locker    adapter.Locker
	limiter   adapter.RateLimiter
	tm        repository.TransactionManager
	cfg       ExportUCConfig
	log       *zerolog.Logger
	now       func() time.Time
}

// NewExportUseCase wires the request surface. locker and limiter may be nil.
func NewExportUseCase(
	repo repository.ExportRequestRepository,
	processor *ExportProcessor,
	writer *ArtifactWriter,
	locker adapter.Locker,
	limiter adapter.RateLimiter,
	cfg ExportUCConfig,
	logger *zerolog.Logger,
) *exportUC {
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{model.ExportFormatJSON, model.ExportFormatActivityPub}
	}
	if cfg.ProcessLockTTL <= 0 {
		cfg.ProcessLockTTL = 5 * time.Minute
	}
	return &exportUC{
		repo:      repo,
		processor: processor,
		writer:    writer,
		locker:    locker,
		limiter:   limiter,
		cfg:       cfg,
		log:       logging.Component(orNop(logger), "export_uc"),
		now:       time.Now,
	}
}

// SetTxManager enables transactional admin retries.
func (u *exportUC) SetTxManager(tm repository.TransactionManager) { u.tm = tm }

func (u *exportUC) Enqueue(ctx context.Context, userID string, in EnqueueInput) (*model.ExportRequest, error) {
	format := in.Format
	if format == "" {
		format = u.cfg.Formats[0]
	}
	if !slices.Contains(u.cfg.Formats, format) {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrInvalidArgument, domain.ErrUnsupportedFormat, format)
	}
	if u.limiter != nil && u.cfg.EnqueueLimit > 0 {
		ok, err := u.limiter.Allow(ctx, adapter.RateScopeExportEnqueue, userID, u.cfg.EnqueueLimit, u.cfg.EnqueueWindow)
		if err != nil {
			return nil, fmt.Errorf("enqueue rate limit: %w", err)
		}
		if !ok {
			metrics.IncRateLimitTriggered("exports_enqueue")
			return nil, domain.ErrRateLimited
		}
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = u.cfg.DefaultMax
	}
	req, err := model.NewExportRequest(userID, format, in.Options, maxAttempts, u.now())
	if err != nil {
		return nil, err
	}
	if err := u.repo.Create(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	metrics.IncExportEnqueued(format)
	logging.With(logging.WithRequestID(ctx, req.ID), u.log).Info().
		Str("format", format).
		Int("max_attempts", req.MaxAttempts).
		Msg("export enqueued")
	return req, nil
}

func (u *exportUC) List(ctx context.Context, userID string) ([]*model.ExportRequest, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return u.repo.ListByUser(ctx, repository.NoTX, userID)
}

func (u *exportUC) ListForUser(ctx context.Context, userID string) ([]*model.ExportRequest, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.repo.ListByUser(ctx, repository.NoTX, userID)
}

func (u *exportUC) Get(ctx context.Context, userID, id string) (*model.ExportRequest, error) {
	req, err := u.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return req, nil
}

func (u *exportUC) AdminRetry(ctx context.Context, id string, in RetryInput) (*model.ExportRequest, error) {
	var out *model.ExportRequest
	err := u.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		req, err := u.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		attempts, maxAttempts := req.AttemptCount, req.MaxAttempts
		if in.ResetAttempts {
			attempts = 0
		}
		if in.MaxAttempts != nil {
			maxAttempts = model.ClampMaxAttempts(*in.MaxAttempts)
		}
		if attempts >= maxAttempts {
			return fmt.Errorf("%w: %w", domain.ErrConflict, domain.ErrRetryExhausted)
		}

		pending := model.ExportStatusPending
		empty := ""
		patch := model.ExportRequestPatch{
			Status:       &pending,
			AttemptCount: &attempts,
			MaxAttempts:  &maxAttempts,
			ErrorMessage: &empty,
		}
		if err := u.repo.Update(ctx, tx, id, patch); err != nil {
			return err
		}
		req.Status, req.AttemptCount, req.MaxAttempts, req.ErrorMessage = pending, attempts, maxAttempts, ""
		out = req
		return nil
	})
	if errors.Is(err, domain.ErrRetryExhausted) {
		metrics.IncAdminRetry("refused")
	}
	if err != nil {
		return nil, err
	}
	metrics.IncAdminRetry("accepted")
	logging.With(logging.WithRequestID(ctx, id), u.log).Info().
		Int("attempt_count", out.AttemptCount).
		Int("max_attempts", out.MaxAttempts).
		Msg("export reopened by admin")
	return out, nil
}

// withTx runs fn in a transaction when a manager is configured, so the row read
// by AdminRetry stays locked until its update commits.
func (u *exportUC) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if u.tm == nil {
		return fn(ctx, repository.NoTX)
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

func (u *exportUC) ProcessQueue(ctx context.Context, batchSize int) (BatchResult, error) {
	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, processLockKey, u.cfg.ProcessLockTTL)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			u.log.Info().Msg("export processing already running, skipping")
			return BatchResult{Skipped: true, Items: []Outcome{}}, nil
		}
		if err != nil {
			return BatchResult{}, fmt.Errorf("acquire process lock: %w", err)
		}
		defer func() {
			// the request context may already be cancelled
			if err := u.locker.Unlock(context.Background(), processLockKey, token); err != nil {
				u.log.Warn().Err(err).Msg("release process lock")
			}
		}()
	}
	return u.processor.ProcessBatch(ctx, batchSize)
}

func (u *exportUC) OpenArtifact(ctx context.Context, callerID string, isAdmin bool, key string) ([]byte, adapter.ObjectMetadata, error) {
	owner := ArtifactOwner(key)
	if owner == "" {
		return nil, adapter.ObjectMetadata{}, domain.ErrNotFound
	}
	if !isAdmin && owner != callerID {
		return nil, adapter.ObjectMetadata{}, domain.ErrForbidden
	}
	return u.writer.Open(ctx, key)
}
