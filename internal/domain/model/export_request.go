package model

import (
	"encoding/json"
	"strings"
	"time"

	"social-export/internal/domain"

	"github.com/oklog/ulid/v2"
)

type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

const (
	ExportFormatJSON        = "json"
	ExportFormatActivityPub = "activitypub"
)

const (
	DefaultMaxAttempts = 3
	MinMaxAttempts     = 1
	MaxMaxAttempts     = 10
)

// ExportOptions are the data selections captured at enqueue time.
type ExportOptions struct {
	IncludeDM       bool `json:"includeDm"`
	IncludeMedia    bool `json:"includeMedia"`
	IncludeAllPosts bool `json:"includeAllPosts"`
}

// ExportRequest is one user's queued data export.
type ExportRequest struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Format       string          `json:"format"`
	Status       ExportStatus    `json:"status"`
	Options      ExportOptions   `json:"options"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	RequestedAt  time.Time       `json:"requested_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ResultJSON   json.RawMessage `json:"result_json,omitempty"`
	DownloadURL  string          `json:"download_url,omitempty"`
}

// NewExportRequest builds a pending request with no attempts made.
// maxAttempts <= 0 selects DefaultMaxAttempts; other values are clamped.
func NewExportRequest(userID, format string, opts ExportOptions, maxAttempts int, now time.Time) (*ExportRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if format == "" {
		format = ExportFormatJSON
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	req := &ExportRequest{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Format:      format,
		Status:      ExportStatusPending,
		Options:     opts,
		MaxAttempts: ClampMaxAttempts(maxAttempts),
		RequestedAt: now.UTC(),
	}
	summary := ExportSummary{Options: opts}
	req.ResultJSON = summary.Encode()
	return req, nil
}

// Exhausted reports whether no attempt budget is left.
func (r *ExportRequest) Exhausted() bool {
	return r.AttemptCount >= r.MaxAttempts
}

// IsTerminal reports whether the processor will never select the request again.
func (r *ExportRequest) IsTerminal() bool {
	return r.Status == ExportStatusCompleted || r.Status == ExportStatusFailed
}

// ExportRequestPatch carries the columns a processor write changes. Nil fields are left untouched.
type ExportRequestPatch struct {
	Status       *ExportStatus
	AttemptCount *int
	MaxAttempts  *int
	ProcessedAt  *time.Time
	ErrorMessage *string
	ResultJSON   json.RawMessage
	DownloadURL  *string
}

// ClampMaxAttempts bounds an administrator supplied attempt budget.
func ClampMaxAttempts(n int) int {
	if n < MinMaxAttempts {
		return MinMaxAttempts
	}
	if n > MaxMaxAttempts {
		return MaxMaxAttempts
	}
	return n
}

// ArtifactRef points at one persisted JSON blob.
type ArtifactRef struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}
