// Package resolver runs the job lifecycle: load a job, claim it, resolve its
// formats through the extractor and commit the result, or record the failure.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/internal/cache"
	"github.com/kiranshivaraju/vidresolve/internal/formats"
	"github.com/kiranshivaraju/vidresolve/internal/metrics"
	"github.com/kiranshivaraju/vidresolve/internal/queue"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
	"golang.org/x/time/rate"
)

const (
	defaultStatusTTL  = 30 * time.Minute
	defaultStaleAfter = 10 * time.Minute

	// compensateTimeout bounds the error-status write issued after a failure.
	compensateTimeout = 5 * time.Second
	maxErrorMessage   = 2000
)

// Service resolves queued jobs one at a time.
type Service struct {
	store      store.Store
	cache      cache.Cache
	extractor  models.Extractor
	statusTTL  time.Duration
	staleAfter time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

type Option func(*Service)

// WithStatusTTL sets how long mirrored job statuses live in the cache.
func WithStatusTTL(ttl time.Duration) Option {
	return func(s *Service) { s.statusTTL = ttl }
}

// WithStaleAfter sets how long a job may sit in processing before a
// redelivered message is allowed to take it over.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

// WithExtractLimiter paces extractor calls. Jobs wait for a token before
// they are claimed.
func WithExtractLimiter(l *rate.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, ca cache.Cache, ex models.Extractor, opts ...Option) *Service {
	s := &Service{
		store:      st,
		cache:      ca,
		extractor:  ex,
		statusTTL:  defaultStatusTTL,
		staleAfter: defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleBatch processes records in order. Individual failures are logged
// and recorded on the job; the batch itself always succeeds. Records not
// reached before ctx is cancelled are left for redelivery.
func (s *Service) HandleBatch(ctx context.Context, records []queue.Record) queue.BatchResult {
	result := queue.NewBatchResult()
	s.metrics.Batch()

	for _, rec := range records {
		if ctx.Err() != nil {
			slog.Warn("batch interrupted", "remaining", len(records)-result.Processed-result.Skipped-result.Failed)
			break
		}

		id, err := uuid.Parse(strings.TrimSpace(rec.Body))
		if err != nil {
			slog.Warn("skipping message with invalid job id", "message_id", rec.MessageID, "body", rec.Body)
			result.Skipped++
			s.metrics.JobOutcome(metrics.OutcomeSkipped)
			continue
		}

		err = s.ProcessJob(ctx, id)
		switch {
		case err == nil:
			result.Processed++
			s.metrics.JobOutcome(metrics.OutcomeProcessed)
		case !failed(err):
			slog.Info("job skipped", "job_id", id, "reason", err)
			result.Skipped++
			s.metrics.JobOutcome(metrics.OutcomeSkipped)
		default:
			slog.Error("job failed", "job_id", id, "error", err)
			result.Failed++
			s.metrics.JobOutcome(metrics.OutcomeFailed)
		}
	}

	return result
}

// ProcessJob resolves a single job. Any failure other than a missing,
// cancelled or foreign-owned job, including a database error while loading
// it, triggers a best-effort write that moves it to error-processing. The
// returned error is always a *JobError.
func (s *Service) ProcessJob(ctx context.Context, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in ProcessJob", "error", r, "job_id", id)
			err = s.fail(ctx, id, ErrPanic, fmt.Errorf("%v", r))
		}
	}()

	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return jobError(id, ErrJobNotFound, nil)
	}
	if err != nil {
		return s.fail(ctx, id, ErrPersistence, fmt.Errorf("loading job: %w", err))
	}

	if job.Status == models.JobStatusCancelled {
		return jobError(id, ErrJobSkipped, errors.New("job is cancelled"))
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return jobError(id, ErrJobSkipped, fmt.Errorf("waiting for extractor: %w", err))
		}
	}

	if err := s.store.ClaimJob(ctx, id, s.staleAfter); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return jobError(id, ErrJobNotFound, nil)
		case errors.Is(err, store.ErrInvalidTransition):
			return jobError(id, ErrJobSkipped, err)
		default:
			return s.fail(ctx, id, ErrPersistence, fmt.Errorf("claiming job: %w", err))
		}
	}
	s.mirrorStatus(ctx, id, models.JobStatusProcessing)
	slog.Info("processing job", "job_id", id, "url", job.URL)

	start := time.Now()
	info, err := s.extractor.Extract(ctx, job.URL)
	s.metrics.ObserveExtraction(s.extractor.Name(), time.Since(start), err)
	if err != nil {
		return s.fail(ctx, id, ErrExtraction, err)
	}

	payload, err := formats.BuildPayload(info)
	if err != nil {
		return s.fail(ctx, id, ErrPersistence, err)
	}
	rows := formats.Normalize(info.Formats)

	err = s.store.CompleteJob(ctx, id, store.JobResult{
		Title:   info.Title,
		Payload: payload,
		Formats: rows,
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		// Cancelled while extracting; keep the cancellation.
		return jobError(id, ErrJobSkipped, err)
	}
	if err != nil {
		return s.fail(ctx, id, ErrPersistence, fmt.Errorf("saving result: %w", err))
	}

	s.mirrorStatus(ctx, id, models.JobStatusFinished)
	slog.Info("job resolved", "job_id", id, "title", info.Title, "formats", len(rows))
	return nil
}

// fail issues the compensating error-status write. Its own failure is only
// logged; the original error is what the caller sees.
func (s *Service) fail(ctx context.Context, id uuid.UUID, kind, cause error) error {
	jerr := jobError(id, kind, cause)
	if kind != ErrExtraction {
		report(jerr)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	msg := truncate(fmt.Sprintf("%v: %v", kind, cause), maxErrorMessage)
	err := s.store.MarkJobFailed(wctx, id, msg)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		// Cancelled while we were working; the cancellation stands.
		slog.Info("job cancelled before failure was recorded", "job_id", id, "cause", cause)
		return jobError(id, ErrJobSkipped, cause)
	case err != nil:
		slog.Error("could not record job failure", "job_id", id, "error", err, "cause", cause)
		return jerr
	}
	s.mirrorStatus(wctx, id, models.JobStatusFailed)
	return jerr
}

// report sends unexpected failures to Sentry. Extraction failures are routine
// (private or removed videos) and stay in the logs only.
func report(jerr *JobError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_id", jerr.JobID.String())
		scope.SetTag("kind", jerr.Kind.Error())
		sentry.CaptureException(jerr)
	})
}

// mirrorStatus copies a status into the cache. Cache errors never affect
// the job.
func (s *Service) mirrorStatus(ctx context.Context, id uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, id, status, s.statusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", id, "status", status, "error", err)
	}
	_ = s.cache.Delete(ctx, cache.JobDetailKey(id))
}

// truncate cuts s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
