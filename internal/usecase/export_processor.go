package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"social-export/internal/domain"
	"social-export/internal/domain/backoff"
	"social-export/internal/domain/identity"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/domain/ports/repository"
	"social-export/internal/infra/logging"
	"social-export/internal/infra/metrics"
	"social-export/internal/usecase/bundle"
)

const (
	DefaultBatchSize  = 5
	DefaultStaleAfter = 15 * time.Minute
)

// Per-request outcome statuses reported in a BatchResult.
const (
	OutcomeCompleted        = "completed"
	OutcomeFailed           = "failed"
	OutcomeRetrying         = "retrying"
	OutcomeDeferred         = "deferred"
	OutcomeClaimedElsewhere = "claimed_elsewhere"
	OutcomeStoreError       = "store_error"
)

type Outcome struct {
	RequestID string     `json:"requestId"`
	UserID    string     `json:"userId"`
	Status    string     `json:"status"`
	Attempt   int        `json:"attempt"`
	RetryAt   *time.Time `json:"retryAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type BatchResult struct {
	Skipped   bool      `json:"skipped,omitempty"`
	Selected  int       `json:"selected"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Retrying  int       `json:"retrying"`
	Deferred  int       `json:"deferred"`
	Conflicts int       `json:"conflicts"`
	Items     []Outcome `json:"items"`
}

func (r *BatchResult) add(o Outcome) {
	r.Items = append(r.Items, o)
	switch o.Status {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeFailed:
		r.Failed++
	case OutcomeRetrying:
		r.Retrying++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeClaimedElsewhere:
		r.Conflicts++
	}
}

// BatchRunner executes the per-request tasks of one invocation. Every task must have
// returned when Run returns.
type BatchRunner interface {
	Run(ctx context.Context, tasks []func(ctx context.Context))
}

// SequentialRunner runs tasks one after another on the calling goroutine.
type SequentialRunner struct{}

func (SequentialRunner) Run(ctx context.Context, tasks []func(ctx context.Context)) {
	for _, t := range tasks {
		t(ctx)
	}
}

type ProcessorConfig struct {
	BatchSize  int
	StaleAfter time.Duration
	Backoff    backoff.Policy
}

// ExportProcessor is the queue state machine: it selects due requests, builds and
// stores their artifacts, and records a completed, retryable or failed outcome.
type ExportProcessor struct {
	repo     repository.ExportRequestRepository
	source   repository.ProfileReader
	writer   *ArtifactWriter
	resolver *identity.Resolver
	events   adapter.EventPublisher
	runner   BatchRunner
	cfg      ProcessorConfig
	log      *zerolog.Logger
	now      func() time.Time
}

// NewExportProcessor wires a processor. source is type-checked per section: it must
// implement repository.CoreSource, and may implement the DM and media listers.
func NewExportProcessor(
	repo repository.ExportRequestRepository,
	source repository.ProfileReader,
	writer *ArtifactWriter,
	resolver *identity.Resolver,
	cfg ProcessorConfig,
	logger *zerolog.Logger,
) *ExportProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &ExportProcessor{
		repo:     repo,
		source:   source,
		writer:   writer,
		resolver: resolver,
		runner:   SequentialRunner{},
		cfg:      cfg,
		log:      logging.Component(orNop(logger), "export_processor"),
		now:      time.Now,
	}
}

// SetEvents enables lifecycle events for terminal transitions.
func (p *ExportProcessor) SetEvents(pub adapter.EventPublisher) { p.events = pub }

// SetRunner replaces the sequential runner, e.g. with a bounded worker pool.
func (p *ExportProcessor) SetRunner(r BatchRunner) {
	if r != nil {
		p.runner = r
	}
}

// SetClock overrides time.Now.
func (p *ExportProcessor) SetClock(now func() time.Time) { p.now = now }

// ProcessBatch runs one invocation over at most batchSize due requests. It fails only
// when the batch cannot be selected; per-request failures are recorded on the rows.
func (p *ExportProcessor) ProcessBatch(ctx context.Context, batchSize int) (BatchResult, error) {
	defer logging.TraceDuration(p.log, "ExportProcessor.ProcessBatch")()
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}
	start := p.now()
	baseDelay, maxDelay := p.cfg.Backoff.Bounds()
	reqs, err := p.repo.ListPending(ctx, repository.NoTX, repository.PendingQuery{
		Limit:       batchSize,
		Now:         start,
		StaleBefore: start.Add(-p.cfg.StaleAfter),
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("select export requests: %w", err)
	}

	outcomes := make([]Outcome, len(reqs))
	tasks := make([]func(context.Context), len(reqs))
	for i, req := range reqs {
		tasks[i] = func(ctx context.Context) {
			metrics.WorkerBusy()
			defer metrics.WorkerIdle()
			outcomes[i] = p.processOne(ctx, req)
		}
	}
	p.runner.Run(ctx, tasks)

	res := BatchResult{Selected: len(reqs), Items: make([]Outcome, 0, len(reqs))}
	for _, o := range outcomes {
		res.add(o)
	}
	p.log.Info().
		Int("selected", res.Selected).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("retrying", res.Retrying).
		Int("deferred", res.Deferred).
		Int("conflicts", res.Conflicts).
		Dur("duration", p.now().Sub(start)).
		Msg("export batch processed")
	return res, nil
}

func (p *ExportProcessor) processOne(ctx context.Context, req *model.ExportRequest) Outcome {
	ctx = logging.WithRequestID(logging.WithUserID(ctx, req.UserID), req.ID)
	log := logging.With(ctx, p.log)
	out := Outcome{RequestID: req.ID, UserID: req.UserID, Attempt: req.AttemptCount}

	if req.Exhausted() {
		return p.finalizeExhausted(ctx, log, req, out)
	}

	now := p.now()
	if d := p.cfg.Backoff.ShouldBackoff(req, now); d.Wait {
		metrics.IncBackoffDeferred()
		retryAt := d.RetryAt.UTC()
		out.Status = OutcomeDeferred
		out.RetryAt = &retryAt
		log.Debug().Time("retry_at", retryAt).Int("attempt", req.AttemptCount).Msg("export backing off")
		return out
	}

	attempt := req.AttemptCount + 1
	processing := model.ExportStatusProcessing
	claimedAt := now.UTC()
	empty := ""
	err := p.repo.Claim(ctx, repository.NoTX, req.ID, req.Status, req.AttemptCount, model.ExportRequestPatch{
		Status:       &processing,
		AttemptCount: &attempt,
		ProcessedAt:  &claimedAt,
		ErrorMessage: &empty,
	})
	if errors.Is(err, domain.ErrConflict) {
		metrics.IncClaimConflict()
		out.Status = OutcomeClaimedElsewhere
		log.Info().Msg("export claimed by another invocation")
		return out
	}
	if err != nil {
		out.Status = OutcomeStoreError
		out.Error = err.Error()
		log.Error().Err(err).Msg("claim export request")
		return out
	}
	req.Status, req.AttemptCount, req.ProcessedAt, req.ErrorMessage = processing, attempt, &claimedAt, ""
	out.Attempt = attempt

	started := p.now()
	summary, buildErr := p.build(ctx, req)
	if buildErr == nil {
		out = p.finalizeCompleted(ctx, log, req, summary, out)
	} else {
		out = p.finalizeFailed(ctx, log, req, buildErr, out)
	}
	metrics.ObserveExportAttempt(req.Format, out.Status, p.now().Sub(started))
	log.Info().
		Int("attempt", attempt).
		Str("status", out.Status).
		Dur("duration", p.now().Sub(started)).
		Msg("export attempt finished")
	return out
}

func (p *ExportProcessor) finalizeExhausted(ctx context.Context, log *zerolog.Logger, req *model.ExportRequest, out Outcome) Outcome {
	msg := req.ErrorMessage
	if msg == "" {
		msg = domain.ErrAttemptsExhausted.Error()
	}
	opts := req.Options
	if summary, err := model.DecodeSummary(req.ResultJSON); err != nil {
		log.Warn().Err(err).Msg("stored summary unreadable, using request options")
	} else if summary.Options != (model.ExportOptions{}) {
		opts = summary.Options
	}
	attempts, maxAttempts := req.AttemptCount, req.MaxAttempts
	exhausted := model.ExportSummary{
		Options:           opts,
		Format:            req.Format,
		Error:             msg,
		AttemptCount:      &attempts,
		MaxAttempts:       &maxAttempts,
		AttemptsExhausted: true,
	}
	failed := model.ExportStatusFailed
	if err := p.repo.Update(ctx, repository.NoTX, req.ID, model.ExportRequestPatch{
		Status:       &failed,
		ErrorMessage: &msg,
		ResultJSON:   exhausted.Encode(),
	}); err != nil {
		out.Status = OutcomeStoreError
		out.Error = err.Error()
		log.Error().Err(err).Msg("finalize exhausted export")
		return out
	}
	metrics.IncExportProcessed(string(failed))
	out.Status = OutcomeFailed
	out.Error = msg
	log.Warn().Int("attempt", req.AttemptCount).Msg("export attempts exhausted")
	p.publish(ctx, log, adapter.ExportEvent{
		Type:      adapter.EventExportFailed,
		RequestID: req.ID,
		UserID:    req.UserID,
		Format:    req.Format,
		Attempt:   req.AttemptCount,
		Error:     msg,
	})
	return out
}

func (p *ExportProcessor) finalizeCompleted(ctx context.Context, log *zerolog.Logger, req *model.ExportRequest, summary *model.ExportSummary, out Outcome) Outcome {
	completed := model.ExportStatusCompleted
	empty := ""
	url := summary.Core.URL
	if err := p.repo.Update(ctx, repository.NoTX, req.ID, model.ExportRequestPatch{
		Status:       &completed,
		ErrorMessage: &empty,
		ResultJSON:   summary.Encode(),
		DownloadURL:  &url,
	}); err != nil {
		out.Status = OutcomeStoreError
		out.Error = err.Error()
		log.Error().Err(err).Msg("record completed export")
		return out
	}
	metrics.IncExportProcessed(string(completed))
	out.Status = OutcomeCompleted
	p.publish(ctx, log, adapter.ExportEvent{
		Type:        adapter.EventExportCompleted,
		RequestID:   req.ID,
		UserID:      req.UserID,
		Format:      req.Format,
		Attempt:     req.AttemptCount,
		DownloadURL: url,
	})
	return out
}

func (p *ExportProcessor) finalizeFailed(ctx context.Context, log *zerolog.Logger, req *model.ExportRequest, buildErr error, out Outcome) Outcome {
	now := p.now().UTC()
	msg := buildErr.Error()
	next := model.ExportStatusPending
	willRetry := req.AttemptCount < req.MaxAttempts
	if !willRetry {
		next = model.ExportStatusFailed
	}
	attempts, maxAttempts := req.AttemptCount, req.MaxAttempts
	summary := model.ExportSummary{
		Options:      req.Options,
		Format:       req.Format,
		Error:        msg,
		AttemptCount: &attempts,
		MaxAttempts:  &maxAttempts,
		WillRetry:    &willRetry,
		FailedAt:     &now,
	}
	if willRetry {
		retryAt := req.ProcessedAt.Add(p.cfg.Backoff.Delay(req.AttemptCount)).UTC()
		summary.RetryAt = &retryAt
		out.RetryAt = &retryAt
	}
	if err := p.repo.Update(ctx, repository.NoTX, req.ID, model.ExportRequestPatch{
		Status:       &next,
		AttemptCount: &attempts,
		ErrorMessage: &msg,
		ResultJSON:   summary.Encode(),
	}); err != nil {
		out.Status = OutcomeStoreError
		out.Error = err.Error()
		log.Error().Err(err).Msg("record failed export attempt")
		return out
	}
	out.Error = msg
	if willRetry {
		out.Status = OutcomeRetrying
		metrics.IncExportProcessed("retrying")
		log.Warn().Err(buildErr).Int("attempt", req.AttemptCount).Msg("export attempt failed, will retry")
		return out
	}
	out.Status = OutcomeFailed
	metrics.IncExportProcessed(string(next))
	log.Error().Err(buildErr).Int("attempt", req.AttemptCount).Msg("export failed")
	p.publish(ctx, log, adapter.ExportEvent{
		Type:      adapter.EventExportFailed,
		RequestID: req.ID,
		UserID:    req.UserID,
		Format:    req.Format,
		Attempt:   req.AttemptCount,
		Error:     msg,
	})
	return out
}

func (p *ExportProcessor) publish(ctx context.Context, log *zerolog.Logger, evt adapter.ExportEvent) {
	if p.events == nil {
		return
	}
	evt.OccurredAt = p.now().UTC()
	if err := p.events.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("event", evt.Type).Msg("publish export event")
	}
}

// build runs the whole pipeline for one claimed request. Panics from builders or
// adapters are turned into errors so they count as a failed attempt.
func (p *ExportProcessor) build(ctx context.Context, req *model.ExportRequest) (summary *model.ExportSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary, err = nil, fmt.Errorf("export build panic: %v", r)
		}
	}()

	core, ok := p.source.(repository.CoreSource)
	if !ok {
		return nil, domain.ErrExportUnsupported
	}
	rep, err := bundle.ForFormat(req.Format, p.resolver)
	if err != nil {
		return nil, err
	}
	profile, err := core.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}

	generatedAt := p.now().UTC()
	attempts, maxAttempts := req.AttemptCount, req.MaxAttempts
	summary = &model.ExportSummary{
		Options:      req.Options,
		Format:       req.Format,
		AttemptCount: &attempts,
		MaxAttempts:  &maxAttempts,
		Counts:       map[string]int{},
	}

	coreIn, err := loadCore(ctx, core, profile, req.Options)
	if err != nil {
		return nil, err
	}
	coreIn.GeneratedAt = generatedAt
	ref, err := p.write(ctx, req, rep, bundle.SectionCore, rep.Core(coreIn), summary)
	if err != nil {
		return nil, err
	}
	summary.Core = model.CompletedSection(ref)

	switch {
	case !req.Options.IncludeDM:
		summary.DM = model.SkippedSection(model.SkipReasonNotRequested)
	default:
		in, supported, err := p.loadDM(ctx, profile)
		if err != nil {
			return nil, err
		}
		if !supported {
			summary.DM = model.SkippedSection(model.SkipReasonUnsupported)
			break
		}
		in.GeneratedAt = generatedAt
		ref, err := p.write(ctx, req, rep, bundle.SectionDM, rep.DM(in), summary)
		if err != nil {
			return nil, err
		}
		summary.DM = model.CompletedSection(ref)
	}

	switch lister, ok := p.source.(repository.MediaLister); {
	case !req.Options.IncludeMedia:
		summary.Media = model.SkippedSection(model.SkipReasonNotRequested)
	case !ok:
		summary.Media = model.SkippedSection(model.SkipReasonUnsupported)
	default:
		items, err := lister.ListMediaByUser(ctx, profile.ID)
		if err != nil {
			return nil, fmt.Errorf("load media: %w", err)
		}
		ref, err := p.write(ctx, req, rep, bundle.SectionMedia, rep.Media(bundle.MediaInput{
			Owner:       profile,
			Items:       items,
			GeneratedAt: generatedAt,
		}), summary)
		if err != nil {
			return nil, err
		}
		summary.Media = model.CompletedSection(ref)
	}

	completedAt := p.now().UTC()
	summary.CompletedAt = &completedAt
	return summary, nil
}

func (p *ExportProcessor) write(ctx context.Context, req *model.ExportRequest, rep bundle.Representation, s bundle.Section, b *bundle.Bundle, summary *model.ExportSummary) (*model.ArtifactRef, error) {
	if b == nil {
		return nil, fmt.Errorf("%s bundle: %w", s, domain.ErrExportUnsupported)
	}
	ref, err := p.writer.PutJSON(ctx, ArtifactKey(req.UserID, req.ID, rep.ArtifactName(s)), b.Payload)
	if err != nil {
		return nil, err
	}
	for k, v := range b.Counts {
		summary.Counts[k] = v
	}
	return ref, nil
}

func loadCore(ctx context.Context, src repository.CoreSource, profile *model.Profile, opts model.ExportOptions) (bundle.CoreInput, error) {
	in := bundle.CoreInput{Profile: profile}
	var err error
	if in.Posts, err = src.ListPostsByAuthors(ctx, []string{profile.ID}, opts.IncludeAllPosts); err != nil {
		return in, fmt.Errorf("load posts: %w", err)
	}
	if in.Friends, err = src.ListFriends(ctx, profile.ID); err != nil {
		return in, fmt.Errorf("load friends: %w", err)
	}
	if in.Reactions, err = src.ListReactionsByUser(ctx, profile.ID); err != nil {
		return in, fmt.Errorf("load reactions: %w", err)
	}
	if in.Bookmarks, err = src.ListBookmarksByUser(ctx, profile.ID); err != nil {
		return in, fmt.Errorf("load bookmarks: %w", err)
	}
	return in, nil
}

// loadDM reports supported=false when the source cannot list threads or messages.
func (p *ExportProcessor) loadDM(ctx context.Context, profile *model.Profile) (in bundle.DMInput, supported bool, err error) {
	threadsSrc, ok := p.source.(repository.DmThreadLister)
	if !ok {
		return in, false, nil
	}
	msgSrc, ok := p.source.(repository.DmMessageLister)
	if !ok {
		return in, false, nil
	}
	all, err := threadsSrc.ListAllDmThreads(ctx)
	if err != nil {
		return in, true, fmt.Errorf("load dm threads: %w", err)
	}
	res := p.resolver
	if res == nil {
		res = identity.NewResolver("")
	}
	in.Owner = profile
	in.Threads = bundle.SelectThreads(res, profile, all)
	in.Messages = make(map[string][]*model.DmMessage, len(in.Threads))
	for _, th := range in.Threads {
		msgs, err := listAllMessages(ctx, msgSrc, th.ID)
		if err != nil {
			return in, true, fmt.Errorf("load dm messages of %s: %w", th.ID, err)
		}
		in.Messages[th.ID] = bundle.SortMessages(msgs)
	}
	return in, true, nil
}

func listAllMessages(ctx context.Context, src repository.DmMessageLister, threadID string) ([]*model.DmMessage, error) {
	var (
		out    []*model.DmMessage
		cursor string
	)
	for {
		page, next, err := src.ListDmMessages(ctx, threadID, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" || next == cursor {
			return out, nil
		}
		cursor = next
	}
}
