//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"social-export/internal/domain"
	"social-export/internal/domain/backoff"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/domain/ports/repository"
)

// ---- in-memory ExportRequestRepository ----

type memExportRepo struct {
	mu   sync.Mutex
	rows map[string]*model.ExportRequest

	ListPendingFunc func(ctx context.Context, q repository.PendingQuery) ([]*model.ExportRequest, error)
	ClaimFunc       func(ctx context.Context, id string) error
	UpdateFunc      func(ctx context.Context, id string, patch model.ExportRequestPatch) error

	Updates []model.ExportRequestPatch
}

var _ repository.ExportRequestRepository = (*memExportRepo)(nil)

func newMemExportRepo(rows ...*model.ExportRequest) *memExportRepo {
	r := &memExportRepo{rows: map[string]*model.ExportRequest{}}
	for _, row := range rows {
		r.rows[row.ID] = row
	}
	return r
}

func (r *memExportRepo) Create(_ context.Context, _ repository.Tx, req *model.ExportRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[req.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}

func (r *memExportRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memExportRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ExportRequest
	for _, row := range r.rows {
		if row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (r *memExportRepo) ListPending(ctx context.Context, _ repository.Tx, q repository.PendingQuery) ([]*model.ExportRequest, error) {
	if r.ListPendingFunc != nil {
		return r.ListPendingFunc(ctx, q)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	policy := backoff.Policy{Base: q.BaseDelay, Max: q.MaxDelay}
	var out []*model.ExportRequest
	for _, row := range r.rows {
		due := row.Status == model.ExportStatusPending &&
			(row.Exhausted() || !policy.ShouldBackoff(row, q.Now).Wait)
		stale := row.Status == model.ExportStatusProcessing && row.ProcessedAt != nil && row.ProcessedAt.Before(q.StaleBefore)
		if due || stale {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memExportRepo) Update(ctx context.Context, _ repository.Tx, id string, patch model.ExportRequestPatch) error {
	if r.UpdateFunc != nil {
		return r.UpdateFunc(ctx, id, patch)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	applyPatch(row, patch)
	r.Updates = append(r.Updates, patch)
	return nil
}

func (r *memExportRepo) Claim(ctx context.Context, _ repository.Tx, id string, fromStatus model.ExportStatus, fromAttempt int, patch model.ExportRequestPatch) error {
	if r.ClaimFunc != nil {
		if err := r.ClaimFunc(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != fromStatus || row.AttemptCount != fromAttempt {
		return domain.ErrConflict
	}
	applyPatch(row, patch)
	return nil
}

func (r *memExportRepo) get(id string) model.ExportRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

func applyPatch(row *model.ExportRequest, p model.ExportRequestPatch) {
	if p.Status != nil {
		row.Status = *p.Status
	}
	if p.AttemptCount != nil {
		row.AttemptCount = *p.AttemptCount
	}
	if p.MaxAttempts != nil {
		row.MaxAttempts = *p.MaxAttempts
	}
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		row.ProcessedAt = &t
	}
	if p.ErrorMessage != nil {
		row.ErrorMessage = *p.ErrorMessage
	}
	if p.ResultJSON != nil {
		row.ResultJSON = p.ResultJSON
	}
	if p.DownloadURL != nil {
		row.DownloadURL = *p.DownloadURL
	}
}

// ---- social sources ----

// coreSocial implements only the core capabilities.
type coreSocial struct {
	profiles  map[string]*model.Profile
	posts     []*model.Post
	friends   []*model.Edge
	reactions []*model.Reaction
	bookmarks []*model.Bookmark

	PostsErr error
}

func (s *coreSocial) GetUser(_ context.Context, id string) (*model.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *coreSocial) ListPostsByAuthors(_ context.Context, ids []string, _ bool) ([]*model.Post, error) {
	if s.PostsErr != nil {
		return nil, s.PostsErr
	}
	var out []*model.Post
	for _, p := range s.posts {
		for _, id := range ids {
			if p.AuthorID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *coreSocial) ListFriends(_ context.Context, userID string) ([]*model.Edge, error) {
	var out []*model.Edge
	for _, e := range s.friends {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *coreSocial) ListReactionsByUser(_ context.Context, userID string) ([]*model.Reaction, error) {
	var out []*model.Reaction
	for _, r := range s.reactions {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *coreSocial) ListBookmarksByUser(_ context.Context, userID string) ([]*model.Bookmark, error) {
	var out []*model.Bookmark
	for _, b := range s.bookmarks {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// fullSocial adds DM and media listing. Messages are served two per page.
type fullSocial struct {
	coreSocial
	threads  []*model.DmThread
	messages map[string][]*model.DmMessage
	media    []*model.MediaItem
}

func (s *fullSocial) ListAllDmThreads(context.Context) ([]*model.DmThread, error) {
	return s.threads, nil
}

func (s *fullSocial) ListDmMessages(_ context.Context, threadID, cursor string) ([]*model.DmMessage, string, error) {
	all := s.messages[threadID]
	start := 0
	if cursor != "" {
		for i, m := range all {
			if m.ID == cursor {
				start = i
			}
		}
	}
	end := min(start+2, len(all))
	next := ""
	if end < len(all) {
		next = all[end].ID
	}
	return all[start:end], next, nil
}

func (s *fullSocial) ListMediaByUser(_ context.Context, userID string) ([]*model.MediaItem, error) {
	var out []*model.MediaItem
	for _, m := range s.media {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ---- object store ----

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]adapter.ObjectMetadata
	puts    int

	PutErr error
}

var _ adapter.ObjectStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, meta: map[string]adapter.ObjectMetadata{}}
}

func (s *memStore) Put(_ context.Context, key string, body []byte, meta adapter.ObjectMetadata) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), body...)
	s.meta[key] = meta
	s.puts++
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, adapter.ObjectMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, adapter.ObjectMetadata{}, domain.ErrNotFound
	}
	return b, s.meta[key], nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ---- locker / limiter / events ----

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked int
	LockErr  error
}

var _ adapter.Locker = (*fakeLocker)(nil)

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if l.LockErr != nil {
		return "", l.LockErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("token mismatch")
	}
	delete(l.held, key)
	l.unlocked++
	return nil
}

type fakeLimiter struct {
	hits  map[string]int
	limit int
}

func (f *fakeLimiter) Allow(_ context.Context, scope, subject string, limit int, _ time.Duration) (bool, error) {
	if f.hits == nil {
		f.hits = map[string]int{}
	}
	key := scope + ":" + subject
	f.hits[key]++
	f.limit = limit
	return f.hits[key] <= limit, nil
}

type recPublisher struct {
	mu     sync.Mutex
	events []adapter.ExportEvent
	Err    error
}

func (p *recPublisher) Publish(_ context.Context, evt adapter.ExportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.Err
}
