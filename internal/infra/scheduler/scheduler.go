package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"social-export/internal/usecase"
)

// QueueProcessor is what the scheduler drives on every tick. The export use
// case satisfies it; the HTTP cron endpoint calls the same method.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context, batchSize int) (usecase.BatchResult, error)
}

// Scheduler triggers one queue run per interval inside the API process.
type Scheduler struct {
	interval  time.Duration
	batchSize int
	timeout   time.Duration
	proc      QueueProcessor
	log       *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler defaults interval to one minute. Each run gets a deadline of
// one interval so a slow batch cannot overlap the next tick.
func NewScheduler(interval time.Duration, batchSize int, proc QueueProcessor, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		interval:  interval,
		batchSize: batchSize,
		timeout:   interval,
		proc:      proc,
		log:       logger,
	}
}

// Start is a no-op when already running.
func (s *Scheduler) Start(parent context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("export scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce processes a single batch and logs the tally.
func (s *Scheduler) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.proc.ProcessQueue(runCtx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled export run failed")
		return
	}
	if res.Skipped {
		s.log.Debug().Msg("export run skipped; lock held elsewhere")
		return
	}
	if res.Selected > 0 {
		s.log.Info().
			Int("selected", res.Selected).
			Int("completed", res.Completed).
			Int("failed", res.Failed).
			Int("retrying", res.Retrying).
			Int("deferred", res.Deferred).
			Msg("scheduled export run")
	}
}

// Stop waits for the loop to exit. Safe to call when not started.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.log.Info().Msg("export scheduler stopped")
}
