package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJobs(ctx context.Context, jobs []*models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Job, error)
	ListFormats(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	ResetFailedJobs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	ClaimJob(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error
	CompleteJob(ctx context.Context, id uuid.UUID, result JobResult) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

// JobResult is everything written when a job finishes resolving. It is
// committed in a single transaction together with the status change.
type JobResult struct {
	Title   string
	Payload json.RawMessage
	Formats []*models.Format
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// validTransitions lists, per current status, the statuses a job may move to
// through UpdateJobStatus or ClaimJob. MarkJobFailed bypasses this table.
var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusCancelled},
	models.JobStatusProcessing: {models.JobStatusFinished, models.JobStatusFailed, models.JobStatusCancelled},
	models.JobStatusFinished:   {models.JobStatusProcessing},
	models.JobStatusReady:      {models.JobStatusProcessing},
	models.JobStatusFailed:     {models.JobStatusProcessing, models.JobStatusPending},
	models.JobStatusError:      {models.JobStatusProcessing, models.JobStatusPending},
}

// CanTransition reports whether a job in status from may move to status to.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesFor returns every status from which target is reachable.
func sourcesFor(target string) []string {
	var from []string
	for s, targets := range validTransitions {
		for _, t := range targets {
			if t == target {
				from = append(from, s)
				break
			}
		}
	}
	return from
}
