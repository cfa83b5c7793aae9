package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SectionStatusCompleted = "completed"
	SectionStatusSkipped   = "skipped"

	SkipReasonNotRequested = "not_requested"
	SkipReasonUnsupported  = "unsupported"
)

// ArtifactStatus reports what happened to one export section.
type ArtifactStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	*ArtifactRef
}

func CompletedSection(ref *ArtifactRef) *ArtifactStatus {
	return &ArtifactStatus{Status: SectionStatusCompleted, ArtifactRef: ref}
}

func SkippedSection(reason string) *ArtifactStatus {
	return &ArtifactStatus{Status: SectionStatusSkipped, Reason: reason}
}

// ExportSummary is the structured result stored in result_json.
// The enqueue, completion, failure and exhaustion shapes share it; unset fields are omitted.
type ExportSummary struct {
	Options           ExportOptions   `json:"options"`
	Format            string          `json:"format,omitempty"`
	AttemptCount      *int            `json:"attemptCount,omitempty"`
	MaxAttempts       *int            `json:"maxAttempts,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	FailedAt          *time.Time      `json:"failedAt,omitempty"`
	Counts            map[string]int  `json:"counts,omitempty"`
	Core              *ArtifactStatus `json:"core,omitempty"`
	DM                *ArtifactStatus `json:"dm,omitempty"`
	Media             *ArtifactStatus `json:"media,omitempty"`
	Error             string          `json:"error,omitempty"`
	WillRetry         *bool           `json:"willRetry,omitempty"`
	RetryAt           *time.Time      `json:"retryAt,omitempty"`
	AttemptsExhausted bool            `json:"attemptsExhausted,omitempty"`
}

// Encode marshals the summary for the result_json column.
func (s *ExportSummary) Encode() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}

// DecodeSummary reads result_json. Empty input yields a zero summary.
func DecodeSummary(raw json.RawMessage) (ExportSummary, error) {
	var s ExportSummary
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return ExportSummary{}, fmt.Errorf("decode result_json: %w", err)
	}
	return s, nil
}
