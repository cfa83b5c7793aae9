package application

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"social-export/internal/config"
	"social-export/internal/domain/backoff"
	"social-export/internal/domain/identity"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/domain/ports/repository"
	"social-export/internal/infra/db/postgres"
	"social-export/internal/infra/events"
	red "social-export/internal/infra/redis"
	"social-export/internal/infra/worker"
	"social-export/internal/usecase"
)

type publisher interface {
	adapter.EventPublisher
	Close() error
}

// Deps are the ports the export use cases run against.
type Deps struct {
	Requests repository.ExportRequestRepository
	Social   repository.ProfileReader
	Store    adapter.ObjectStore
	Locker   adapter.Locker
	Limiter  adapter.RateLimiter
	Events   adapter.EventPublisher
	Tx       repository.TransactionManager
}

// Services is the wired export stack shared by the HTTP service and exportctl.
type Services struct {
	Exports   usecase.ExportUseCase
	Processor *usecase.ExportProcessor
	Pool      *pgxpool.Pool

	redis  red.RedisClient
	events publisher
}

// Build connects to postgres, redis and (optionally) kafka and composes the use cases.
// The caller owns the returned Services and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Services, error) {
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	var pub publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = rc.Close()
			pool.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		pub = kp
	}

	s := &Services{Pool: pool, redis: rc, events: pub}
	s.Processor, s.Exports = Compose(cfg, Deps{
		Requests: postgres.NewExportRequestRepo(pool),
		Social:   postgres.NewSocialRepo(pool),
		Store:    red.NewObjectStore(rc, cfg.Redis.ArtifactTTL),
		Locker:   red.NewLocker(rc),
		Limiter:  red.NewRateLimiter(rc),
		Events:   pub,
		Tx:       postgres.NewTxManager(pool),
	}, logger)

	logger.Info().
		Str("domain", cfg.Instance.Domain).
		Strs("formats", cfg.Export.Formats).
		Int("concurrency", cfg.Export.Concurrency).
		Bool("kafka", len(cfg.Kafka.Brokers) > 0).
		Msg("export services ready")
	return s, nil
}

// Compose builds the processor and the request-surface use case from ports.
func Compose(cfg *config.Config, d Deps, logger *zerolog.Logger) (*usecase.ExportProcessor, usecase.ExportUseCase) {
	writer := usecase.NewArtifactWriter(d.Store, cfg.Instance.PublicBaseURL, logger)
	proc := usecase.NewExportProcessor(d.Requests, d.Social, writer, identity.NewResolver(cfg.Instance.Domain),
		usecase.ProcessorConfig{
			BatchSize:  cfg.Export.BatchSize,
			StaleAfter: cfg.Export.StaleAfter,
			Backoff:    backoff.Policy{Base: cfg.Export.BaseDelay, Max: cfg.Export.MaxDelay},
		}, logger)
	if d.Events != nil {
		proc.SetEvents(d.Events)
	}
	if cfg.Export.Concurrency > 1 {
		proc.SetRunner(worker.NewPool(cfg.Export.Concurrency, logger))
	}

	uc := usecase.NewExportUseCase(d.Requests, proc, writer, d.Locker, d.Limiter, usecase.ExportUCConfig{
		Formats:        cfg.Export.Formats,
		DefaultMax:     cfg.Export.DefaultMaxAttempts,
		EnqueueLimit:   cfg.Export.EnqueueLimit,
		EnqueueWindow:  cfg.Export.EnqueueWindow,
		ProcessLockTTL: cfg.Redis.LockTTL,
	}, logger)
	if d.Tx != nil {
		uc.SetTxManager(d.Tx)
	}
	return proc, uc
}

func (s *Services) Close() {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
