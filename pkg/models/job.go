package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusFinished   = "finished-processing"
	JobStatusFailed     = "error-processing"
	JobStatusCancelled  = "cancelled"

	// Written by the legacy worker; still readable, never written.
	JobStatusReady = "ready"
	JobStatusError = "error"
)

// Job is one video URL waiting to be resolved into downloadable formats.
// Jobs are created in pending by the intake API (or any other producer) and
// only the worker moves them forward.
type Job struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	RequestID    *uuid.UUID      `db:"request_id"    json:"request_id,omitempty"`
	URL          string          `db:"url"           json:"url"`
	Status       string          `db:"status"        json:"status"`
	Title        *string         `db:"title"         json:"title,omitempty"`
	Payload      json.RawMessage `db:"json"          json:"json,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

// IsTerminalSuccess reports whether the job finished resolving, including rows
// written by the legacy worker.
func (j *Job) IsTerminalSuccess() bool {
	return j.Status == JobStatusFinished || j.Status == JobStatusReady
}

// IsFailed reports whether the job ended in an error state.
func (j *Job) IsFailed() bool {
	return j.Status == JobStatusFailed || j.Status == JobStatusError
}
