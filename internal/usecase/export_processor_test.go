//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"social-export/internal/domain"
	"social-export/internal/domain/backoff"
	"social-export/internal/domain/identity"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/domain/ports/repository"
	"social-export/internal/usecase"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func testSocial() *fullSocial {
	return &fullSocial{
		coreSocial: coreSocial{
			profiles: map[string]*model.Profile{
				"u1": {ID: "u1", Handle: "alice", DisplayName: "Alice", CreatedAt: t0.Add(-48 * time.Hour)},
			},
			posts: []*model.Post{
				{ID: "p1", AuthorID: "u1", Content: "hello", Visibility: "public", CreatedAt: t0.Add(-time.Hour)},
				{ID: "p2", AuthorID: "u1", Content: "again", Visibility: "public", CreatedAt: t0.Add(-time.Minute)},
			},
			friends:   []*model.Edge{{UserID: "u1", FriendID: "u2", FriendHandle: "bob@remote.example", Status: "accepted"}},
			reactions: []*model.Reaction{{ID: "r1", UserID: "u1", PostID: "p9", Emoji: "+1"}},
			bookmarks: []*model.Bookmark{{ID: "b1", UserID: "u1", PostID: "p8"}},
		},
		threads: []*model.DmThread{
			{ID: "t1", Participants: []string{"u1", "bob@remote.example"}, CreatedAt: t0.Add(-time.Hour)},
			{ID: "t2", Participants: []string{"carol", "dave"}, CreatedAt: t0.Add(-time.Hour)},
		},
		messages: map[string][]*model.DmMessage{
			"t1": {
				{ID: "m1", ThreadID: "t1", AuthorID: "u1", Content: "hi", CreatedAt: t0.Add(-30 * time.Minute)},
				{ID: "m2", ThreadID: "t1", AuthorID: "bob@remote.example", Content: "yo", CreatedAt: t0.Add(-40 * time.Minute)},
				{ID: "m3", ThreadID: "t1", AuthorID: "u1", Content: "later", CreatedAt: t0.Add(-10 * time.Minute)},
			},
			"t2": {{ID: "m9", ThreadID: "t2", AuthorID: "carol", Content: "secret"}},
		},
		media: []*model.MediaItem{
			{ID: "md1", UserID: "u1", URL: "/media/cat.png", ContentType: "image/png", SizeBytes: 10},
			{ID: "md2", UserID: "u1", URL: "https://cdn.example/clip.mp4", ContentType: "video/mp4"},
		},
	}
}

func pendingReq(id, format string, opts model.ExportOptions) *model.ExportRequest {
	return &model.ExportRequest{
		ID:          id,
		UserID:      "u1",
		Format:      format,
		Status:      model.ExportStatusPending,
		Options:     opts,
		MaxAttempts: 3,
		RequestedAt: t0.Add(-time.Hour),
	}
}

type harness struct {
	repo   *memExportRepo
	store  *memStore
	events *recPublisher
	proc   *usecase.ExportProcessor
}

func newHarness(source repository.ProfileReader, rows ...*model.ExportRequest) *harness {
	logger := zerolog.Nop()
	h := &harness{repo: newMemExportRepo(rows...), store: newMemStore(), events: &recPublisher{}}
	writer := usecase.NewArtifactWriter(h.store, "https://example.com/", &logger)
	h.proc = usecase.NewExportProcessor(h.repo, source, writer, identity.NewResolver("example.com"),
		usecase.ProcessorConfig{Backoff: backoff.Default()}, &logger)
	h.proc.SetEvents(h.events)
	h.proc.SetClock(func() time.Time { return t0 })
	return h
}

func TestProcessBatch_CoreOnly(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	h := newHarness(testSocial(), req)

	res, err := h.proc.ProcessBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Selected != 1 || res.Completed != 1 {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	wantKeys := []string{"exports/u1/r1/core.json.json"}
	if diff := cmp.Diff(wantKeys, h.store.keys()); diff != "" {
		t.Fatalf("stored keys mismatch (-want +got):\n%s", diff)
	}

	row := h.repo.get("r1")
	if row.Status != model.ExportStatusCompleted || row.AttemptCount != 1 {
		t.Fatalf("row = %s/%d", row.Status, row.AttemptCount)
	}
	if row.DownloadURL != "https://example.com/files/exports/u1/r1/core.json.json" {
		t.Errorf("download url = %q", row.DownloadURL)
	}
	if row.ErrorMessage != "" {
		t.Errorf("error message should be cleared, got %q", row.ErrorMessage)
	}
	if row.ProcessedAt == nil || !row.ProcessedAt.Equal(t0) {
		t.Errorf("processed_at = %v", row.ProcessedAt)
	}

	raw := string(row.ResultJSON)
	checks := map[string]string{
		"dm.status":        "skipped",
		"dm.reason":        "not_requested",
		"media.status":     "skipped",
		"core.status":      "completed",
		"core.key":         "exports/u1/r1/core.json.json",
		"format":           "json",
		"counts.posts":     "2",
		"counts.friends":   "1",
		"attemptCount":     "1",
		"maxAttempts":      "3",
		"core.contentType": "application/json",
	}
	for path, want := range checks {
		if got := gjson.Get(raw, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	if len(h.events.events) != 1 || h.events.events[0].Type != adapter.EventExportCompleted {
		t.Fatalf("expected one completed event, got %+v", h.events.events)
	}
	if h.events.events[0].DownloadURL != row.DownloadURL {
		t.Errorf("event download url = %q", h.events.events[0].DownloadURL)
	}

	meta := h.store.meta["exports/u1/r1/core.json.json"]
	if meta.ContentType != "application/json" || meta.CacheControl != "private, no-store" {
		t.Errorf("unexpected object metadata %+v", meta)
	}
	body := h.store.objects["exports/u1/r1/core.json.json"]
	if got := gjson.GetBytes(body, "profile.handle").String(); got != "alice" {
		t.Errorf("artifact profile.handle = %q", got)
	}
}

func TestProcessBatch_ProtocolAllSections(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatActivityPub, model.ExportOptions{IncludeDM: true, IncludeMedia: true})
	h := newHarness(testSocial(), req)

	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed != 1 {
		t.Fatalf("expected completion, got %+v", res.Items)
	}

	want := []string{
		"exports/u1/r1/core.activitypub.json",
		"exports/u1/r1/dm.activitypub.json",
		"exports/u1/r1/media.activitypub.json",
	}
	if diff := cmp.Diff(want, h.store.keys()); diff != "" {
		t.Fatalf("stored keys mismatch (-want +got):\n%s", diff)
	}

	summary := string(h.repo.get("r1").ResultJSON)
	for path, want := range map[string]int64{"counts.dmThreads": 1, "counts.dmMessages": 3, "counts.media": 2} {
		if got := gjson.Get(summary, path).Int(); got != want {
			t.Errorf("%s = %d, want %d", path, got, want)
		}
	}

	dm := h.store.objects["exports/u1/r1/dm.activitypub.json"]
	if strings.Contains(string(dm), "secret") {
		t.Error("thread without the owner leaked into the dm artifact")
	}
	contents := gjson.GetBytes(dm, "items.0.orderedItems.#.object.content").Array()
	var got []string
	for _, c := range contents {
		got = append(got, c.String())
	}
	if diff := cmp.Diff([]string{"yo", "hi", "later"}, got); diff != "" {
		t.Errorf("messages not sorted by creation (-want +got):\n%s", diff)
	}

	media := h.store.objects["exports/u1/r1/media.activitypub.json"]
	if got := gjson.GetBytes(media, `items.#(type=="Image").url`).String(); got != "https://example.com/media/cat.png" {
		t.Errorf("image url = %q", got)
	}
	if got := gjson.GetBytes(media, `items.#(type=="Video").url`).String(); got != "https://cdn.example/clip.mp4" {
		t.Errorf("video url = %q", got)
	}
}

func TestProcessBatch_SectionsUnsupported(t *testing.T) {
	social := testSocial()
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{IncludeDM: true, IncludeMedia: true})
	h := newHarness(&social.coreSocial, req)

	if _, err := h.proc.ProcessBatch(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	row := h.repo.get("r1")
	if row.Status != model.ExportStatusCompleted {
		t.Fatalf("missing optional capabilities must not fail the export, got %s (%s)", row.Status, row.ErrorMessage)
	}
	for _, s := range []string{"dm", "media"} {
		if got := gjson.GetBytes(row.ResultJSON, s+".reason").String(); got != "unsupported" {
			t.Errorf("%s.reason = %q", s, got)
		}
	}
	if len(h.store.keys()) != 1 {
		t.Errorf("expected only the core artifact, got %v", h.store.keys())
	}
}

type profileOnly struct{}

func (profileOnly) GetUser(context.Context, string) (*model.Profile, error) {
	return &model.Profile{ID: "u1"}, nil
}

func TestProcessBatch_CoreUnsupportedIsAttemptFailure(t *testing.T) {
	h := newHarness(profileOnly{}, pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{}))
	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Retrying != 1 {
		t.Fatalf("expected retrying outcome, got %+v", res.Items)
	}
	if got := h.repo.get("r1").ErrorMessage; got != domain.ErrExportUnsupported.Error() {
		t.Errorf("error message = %q", got)
	}
}

func TestProcessBatch_BackoffDefers(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	req.AttemptCount = 2
	req.ProcessedAt = ptrTime(t0.Add(-time.Second))
	req.ErrorMessage = "previous failure"
	h := newHarness(testSocial(), req)
	// a store that returns a row still inside its delay is rechecked per request
	h.repo.ListPendingFunc = func(context.Context, repository.PendingQuery) ([]*model.ExportRequest, error) {
		row := h.repo.get("r1")
		return []*model.ExportRequest{&row}, nil
	}

	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deferred != 1 || len(res.Items) != 1 {
		t.Fatalf("expected one deferred item, got %+v", res)
	}
	item := res.Items[0]
	wantRetry := t0.Add(-time.Second).Add(120 * time.Second)
	if item.RetryAt == nil || !item.RetryAt.Equal(wantRetry) {
		t.Fatalf("retryAt = %v, want %v", item.RetryAt, wantRetry)
	}
	if !item.RetryAt.After(t0) {
		t.Error("retryAt must be in the future")
	}
	row := h.repo.get("r1")
	if row.Status != model.ExportStatusPending || row.AttemptCount != 2 || row.ErrorMessage != "previous failure" {
		t.Errorf("deferred row must not change, got %+v", row)
	}
	if len(h.repo.Updates) != 0 || len(h.store.keys()) != 0 {
		t.Error("deferred request must not be written")
	}
}

func TestProcessBatch_BackingOffRowsDoNotFillBatch(t *testing.T) {
	var rows []*model.ExportRequest
	for i := 0; i < 5; i++ {
		r := pendingReq(fmt.Sprintf("waiting-%d", i), model.ExportFormatJSON, model.ExportOptions{})
		r.RequestedAt = t0.Add(-2*time.Hour + time.Duration(i)*time.Second)
		r.AttemptCount = 2
		r.ProcessedAt = ptrTime(t0.Add(-time.Second))
		rows = append(rows, r)
	}
	fresh := pendingReq("fresh", model.ExportFormatJSON, model.ExportOptions{})
	h := newHarness(testSocial(), append(rows, fresh)...)

	var got repository.PendingQuery
	h.repo.ListPendingFunc = func(ctx context.Context, q repository.PendingQuery) ([]*model.ExportRequest, error) {
		got = q
		h.repo.ListPendingFunc = nil
		return h.repo.ListPending(ctx, repository.NoTX, q)
	}

	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Selected != 1 || res.Completed != 1 || res.Deferred != 0 || res.Items[0].RequestID != "fresh" {
		t.Fatalf("only the due request should be selected, got %+v", res)
	}
	want := repository.PendingQuery{
		Limit:       5,
		Now:         t0,
		StaleBefore: t0.Add(-usecase.DefaultStaleAfter),
		BaseDelay:   time.Minute,
		MaxDelay:    30 * time.Minute,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pending query (-want +got):\n%s", diff)
	}
	for _, r := range rows {
		if row := h.repo.get(r.ID); row.Status != model.ExportStatusPending || row.AttemptCount != 2 {
			t.Errorf("%s should be untouched, got %s/%d", r.ID, row.Status, row.AttemptCount)
		}
	}
}

func TestProcessBatch_BackoffElapsedProceeds(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	req.AttemptCount = 1
	req.ProcessedAt = ptrTime(t0.Add(-2 * time.Minute))
	h := newHarness(testSocial(), req)

	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Completed != 1 {
		t.Fatalf("expected completion after the delay elapsed, got %+v", res.Items)
	}
	if got := h.repo.get("r1").AttemptCount; got != 2 {
		t.Errorf("attempt count = %d, want 2", got)
	}
}

func TestProcessBatch_Exhausted(t *testing.T) {
	cases := []struct {
		name    string
		prevErr string
		wantErr string
	}{
		{"keeps last error", "object store down", "object store down"},
		{"generic message", "", "maximum export attempts reached"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
			req.AttemptCount = 3
			req.ErrorMessage = tc.prevErr
			// exhaustion is checked before backoff
			req.ProcessedAt = ptrTime(t0.Add(-time.Second))
			h := newHarness(testSocial(), req)

			res, err := h.proc.ProcessBatch(context.Background(), 5)
			if err != nil {
				t.Fatal(err)
			}
			if res.Failed != 1 {
				t.Fatalf("expected failed outcome, got %+v", res.Items)
			}
			row := h.repo.get("r1")
			if row.Status != model.ExportStatusFailed || row.AttemptCount != 3 {
				t.Fatalf("row = %s/%d", row.Status, row.AttemptCount)
			}
			if row.ErrorMessage != tc.wantErr {
				t.Errorf("error message = %q, want %q", row.ErrorMessage, tc.wantErr)
			}
			if !gjson.GetBytes(row.ResultJSON, "attemptsExhausted").Bool() {
				t.Errorf("summary should flag exhaustion: %s", row.ResultJSON)
			}
			if len(h.store.keys()) != 0 {
				t.Error("no artifacts expected")
			}
			if len(h.events.events) != 1 || h.events.events[0].Type != adapter.EventExportFailed {
				t.Errorf("expected failed event, got %+v", h.events.events)
			}
		})
	}
}

func TestProcessBatch_ExhaustedUnreadableSummary(t *testing.T) {
	opts := model.ExportOptions{IncludeDM: true, IncludeMedia: true}
	req := pendingReq("r1", model.ExportFormatActivityPub, opts)
	req.AttemptCount = 3
	req.ResultJSON = []byte(`{"options":`)
	h := newHarness(testSocial(), req)

	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected failed outcome, got %+v", res.Items)
	}
	raw := h.repo.get("r1").ResultJSON
	if got := gjson.GetBytes(raw, "format").String(); got != model.ExportFormatActivityPub {
		t.Errorf("format = %q, want activitypub: %s", got, raw)
	}
	if !gjson.GetBytes(raw, "options.includeDm").Bool() || !gjson.GetBytes(raw, "options.includeMedia").Bool() {
		t.Errorf("options should fall back to the request's: %s", raw)
	}
}

func TestProcessBatch_FailureRetriesThenFails(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	h := newHarness(testSocial(), req)
	h.store.PutErr = errors.New("bucket unreachable")

	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Retrying != 1 {
		t.Fatalf("first failure should retry, got %+v", res.Items)
	}
	row := h.repo.get("r1")
	if row.Status != model.ExportStatusPending || row.AttemptCount != 1 {
		t.Fatalf("row = %s/%d", row.Status, row.AttemptCount)
	}
	if !strings.Contains(row.ErrorMessage, "bucket unreachable") {
		t.Errorf("error message = %q", row.ErrorMessage)
	}
	if !gjson.GetBytes(row.ResultJSON, "willRetry").Bool() {
		t.Errorf("summary should announce a retry: %s", row.ResultJSON)
	}
	wantRetry := t0.Add(time.Minute).Format(time.RFC3339)
	if got := gjson.GetBytes(row.ResultJSON, "retryAt").String(); got != wantRetry {
		t.Errorf("retryAt = %q, want %q", got, wantRetry)
	}
	if res.Items[0].RetryAt == nil {
		t.Error("retrying outcome should carry retryAt")
	}

	// last attempt
	h.repo.mu.Lock()
	h.repo.rows["r1"].AttemptCount = 2
	h.repo.rows["r1"].ProcessedAt = ptrTime(t0.Add(-time.Hour))
	h.repo.mu.Unlock()

	res, _ = h.proc.ProcessBatch(context.Background(), 5)
	if res.Failed != 1 {
		t.Fatalf("last attempt should fail terminally, got %+v", res.Items)
	}
	row = h.repo.get("r1")
	if row.Status != model.ExportStatusFailed || row.AttemptCount != 3 {
		t.Fatalf("row = %s/%d", row.Status, row.AttemptCount)
	}
	if row.AttemptCount > row.MaxAttempts {
		t.Error("attempt count exceeded max attempts")
	}
	if gjson.GetBytes(row.ResultJSON, "willRetry").Bool() {
		t.Error("terminal failure must not announce a retry")
	}
	if gjson.GetBytes(row.ResultJSON, "retryAt").Exists() {
		t.Error("terminal failure has no retryAt")
	}
}

func TestProcessBatch_OneFailureDoesNotAbortBatch(t *testing.T) {
	bad := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	bad.UserID = "ghost"
	good := pendingReq("r2", model.ExportFormatJSON, model.ExportOptions{})
	good.RequestedAt = t0.Add(-30 * time.Minute)
	h := newHarness(testSocial(), bad, good)

	res, err := h.proc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Selected != 2 || res.Completed != 1 || res.Retrying != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.repo.get("r1").ErrorMessage; got != domain.ErrProfileNotFound.Error() {
		t.Errorf("error message = %q", got)
	}
	if h.repo.get("r2").Status != model.ExportStatusCompleted {
		t.Error("second request should complete")
	}
}

func TestProcessBatch_ClaimConflict(t *testing.T) {
	h := newHarness(testSocial(), pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{}))
	h.repo.ClaimFunc = func(context.Context, string) error { return domain.ErrConflict }

	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Conflicts != 1 || res.Items[0].Status != usecase.OutcomeClaimedElsewhere {
		t.Fatalf("expected claimed_elsewhere, got %+v", res.Items)
	}
	if len(h.store.keys()) != 0 || len(h.repo.Updates) != 0 {
		t.Error("a lost claim must not touch storage or the row")
	}
}

func TestProcessBatch_StaleProcessingIsRecovered(t *testing.T) {
	req := pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{})
	req.Status = model.ExportStatusProcessing
	req.AttemptCount = 1
	req.ProcessedAt = ptrTime(t0.Add(-time.Hour))
	fresh := pendingReq("r2", model.ExportFormatJSON, model.ExportOptions{})
	fresh.Status = model.ExportStatusProcessing
	fresh.AttemptCount = 1
	fresh.ProcessedAt = ptrTime(t0.Add(-time.Minute))
	h := newHarness(testSocial(), req, fresh)

	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Selected != 1 || res.Completed != 1 || res.Items[0].RequestID != "r1" {
		t.Fatalf("only the stale row should be picked, got %+v", res)
	}
	if h.repo.get("r2").Status != model.ExportStatusProcessing {
		t.Error("in-flight row must be left alone")
	}
}

func TestProcessBatch_SelectionError(t *testing.T) {
	h := newHarness(testSocial())
	h.repo.ListPendingFunc = func(context.Context, repository.PendingQuery) ([]*model.ExportRequest, error) {
		return nil, errors.New("db down")
	}
	if _, err := h.proc.ProcessBatch(context.Background(), 5); err == nil {
		t.Fatal("expected selection error")
	}
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	var rows []*model.ExportRequest
	for i, id := range []string{"a", "b", "c"} {
		r := pendingReq(id, model.ExportFormatJSON, model.ExportOptions{})
		r.RequestedAt = t0.Add(time.Duration(i) * time.Second)
		rows = append(rows, r)
	}
	h := newHarness(testSocial(), rows...)
	res, _ := h.proc.ProcessBatch(context.Background(), 2)
	if res.Selected != 2 {
		t.Fatalf("selected = %d", res.Selected)
	}
	if h.repo.get("c").Status != model.ExportStatusPending {
		t.Error("request beyond the batch must stay pending")
	}
}

func TestProcessBatch_CompletedUpdateFailsIsStoreError(t *testing.T) {
	h := newHarness(testSocial(), pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{}))
	h.repo.UpdateFunc = func(context.Context, string, model.ExportRequestPatch) error {
		return errors.New("write failed")
	}
	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Items[0].Status != usecase.OutcomeStoreError {
		t.Fatalf("status = %s", res.Items[0].Status)
	}
	if len(h.events.events) != 0 {
		t.Error("no event for an unrecorded outcome")
	}
}

func TestProcessBatch_EventErrorsAreIgnored(t *testing.T) {
	h := newHarness(testSocial(), pendingReq("r1", model.ExportFormatJSON, model.ExportOptions{}))
	h.events.Err = errors.New("broker down")
	res, _ := h.proc.ProcessBatch(context.Background(), 5)
	if res.Completed != 1 {
		t.Fatalf("publish errors must not fail the export, got %+v", res.Items)
	}
}

// parallelRunner runs every task on its own goroutine.
type parallelRunner struct{}

func (parallelRunner) Run(ctx context.Context, tasks []func(context.Context)) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t(ctx)
		}()
	}
	wg.Wait()
}

func TestProcessBatch_ParallelRunner(t *testing.T) {
	var rows []*model.ExportRequest
	for _, id := range []string{"a", "b", "c", "d"} {
		rows = append(rows, pendingReq(id, model.ExportFormatJSON, model.ExportOptions{IncludeMedia: true}))
	}
	h := newHarness(testSocial(), rows...)
	h.proc.SetRunner(parallelRunner{})

	res, err := h.proc.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed != 4 {
		t.Fatalf("expected 4 completions, got %+v", res)
	}
	if len(h.store.keys()) != 8 {
		t.Errorf("expected core and media for each request, got %d keys", len(h.store.keys()))
	}
}
