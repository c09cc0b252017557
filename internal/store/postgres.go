package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Jobs ---

const jobColumns = `id, request_id, url, status, title, json, error_message, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var payload []byte
	if err := row.Scan(&j.ID, &j.RequestID, &j.URL, &j.Status, &j.Title, &payload,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

// CreateJobs inserts jobs in one transaction. Zero timestamps and an empty
// status are filled in.
func (s *PostgresStore) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create jobs: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, job := range jobs {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		if job.Status == "" {
			job.Status = models.JobStatusPending
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		if job.UpdatedAt.IsZero() {
			job.UpdatedAt = now
		}
		batch.Queue(
			`INSERT INTO jobs (id, request_id, url, status, title, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			job.ID, job.RequestID, job.URL, job.Status, job.Title, job.CreatedAt, job.UpdatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE request_id = $1 ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by request: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListFormats(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, format_id, job_id, ext, resolution, acodec, vcodec, filesize, tbr, url, language, format_note, created_at
		 FROM formats WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}
	defer rows.Close()

	var formats []*models.Format
	for rows.Next() {
		var f models.Format
		if err := rows.Scan(&f.ID, &f.FormatID, &f.JobID, &f.Ext, &f.Resolution, &f.ACodec, &f.VCodec,
			&f.Filesize, &f.TBR, &f.URL, &f.Language, &f.FormatNote, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan format: %w", err)
		}
		formats = append(formats, &f)
	}
	return formats, rows.Err()
}

// UpdateJobStatus moves a job to status if the transition table allows it.
// The check and the write are one statement, so two callers racing on the
// same job cannot both succeed.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	now := time.Now().UTC()
	ub := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Update("jobs").
		Set("status", status).
		Set("updated_at", now)

	switch status {
	case models.JobStatusProcessing:
		ub = ub.Set("started_at", now).Set("completed_at", nil)
	case models.JobStatusFinished, models.JobStatusFailed, models.JobStatusCancelled:
		ub = ub.Set("completed_at", now)
	case models.JobStatusPending:
		ub = ub.Set("started_at", nil).Set("completed_at", nil).Set("error_message", nil)
	}
	if params.ErrorMessage != nil {
		ub = ub.Set("error_message", *params.ErrorMessage)
	}

	query, args, err := ub.
		Where("id = ? AND status::text = ANY(?)", id, sourcesFor(status)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build job status update: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, status)
	}
	return nil
}

// ResetFailedJobs puts failed jobs back to pending and returns the ids that
// were actually reset. Jobs in any other status are left alone.
func (s *PostgresStore) ResetFailedJobs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = 'pending', error_message = NULL, started_at = NULL,
		   completed_at = NULL, updated_at = NOW()
		 WHERE id = ANY($1) AND status::text = ANY($2)
		 RETURNING id`, ids, []string{models.JobStatusFailed, models.JobStatusError})
	if err != nil {
		return nil, fmt.Errorf("reset failed jobs: %w", err)
	}
	defer rows.Close()

	reset := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reset job id: %w", err)
		}
		reset = append(reset, id)
	}
	return reset, rows.Err()
}

// ClaimJob moves a job to processing. A job already in processing is only
// reclaimed once its started_at is older than staleAfter, which lets a
// redelivered message pick up work abandoned by a crashed worker.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'processing', started_at = $2, completed_at = NULL,
		   error_message = NULL, updated_at = $2
		 WHERE id = $1
		   AND (status::text = ANY($3) OR (status = 'processing' AND started_at < $4))`,
		id, now, sourcesFor(models.JobStatusProcessing), now.Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusProcessing)
	}
	return nil
}

// CompleteJob writes the resolved title, payload and formats and marks the
// job finished, all in one transaction. Existing format rows for the job are
// replaced, so reprocessing a job never duplicates them.
func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result JobResult) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin complete job: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock job: %w", err)
	}
	if !CanTransition(current, models.JobStatusFinished) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, models.JobStatusFinished)
	}

	now := time.Now().UTC()
	var payload []byte
	if len(result.Payload) > 0 {
		payload = result.Payload
	}
	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET title = $2, json = $3, status = $4, error_message = NULL,
		   completed_at = $5, updated_at = $5
		 WHERE id = $1`,
		id, result.Title, payload, models.JobStatusFinished, now); err != nil {
		return fmt.Errorf("update job result: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM formats WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("clear formats: %w", err)
	}

	if len(result.Formats) > 0 {
		rows := make([][]any, 0, len(result.Formats))
		for _, f := range result.Formats {
			if f.ID == uuid.Nil {
				f.ID = uuid.New()
			}
			f.JobID = id
			f.CreatedAt = now
			rows = append(rows, []any{
				f.ID, f.FormatID, f.JobID, f.Ext, f.Resolution, f.ACodec, f.VCodec,
				f.Filesize, f.TBR, f.URL, f.Language, f.FormatNote, f.CreatedAt,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"formats"},
			[]string{"id", "format_id", "job_id", "ext", "resolution", "acodec", "vcodec",
				"filesize", "tbr", "url", "language", "format_note", "created_at"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert formats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete job: %w", err)
	}
	return nil
}

// MarkJobFailed forces a job into error-processing from any status except
// cancelled, ignoring the transition table. It is the compensating write
// issued after a processing failure. A cancelled job is left alone and
// reported as ErrInvalidTransition.
func (s *PostgresStore) MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status <> $4`, id, models.JobStatusFailed, errMsg, models.JobStatusCancelled)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusFailed)
	}
	return nil
}

// transitionError explains why a conditional status update touched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID, target string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
