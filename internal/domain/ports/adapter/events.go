package adapter

import (
	"context"
	"time"
)

const (
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
)

type ExportEvent struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"requestId"`
	UserID      string    `json:"userId"`
	Format      string    `json:"format"`
	Attempt     int       `json:"attempt"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt ExportEvent) error
}
