package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/database"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const schema = `
	CREATE TABLE IF NOT EXISTS render_jobs (
		id               UUID PRIMARY KEY,
		status           TEXT NOT NULL,
		progress         INTEGER NOT NULL DEFAULT 0,
		steps            JSONB NOT NULL DEFAULT '[]'::jsonb,
		params           JSONB NOT NULL,
		owner            TEXT NOT NULL DEFAULT '',
		error            TEXT NOT NULL DEFAULT '',
		output_reference TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		started_at       TIMESTAMPTZ,
		finished_at      TIMESTAMPTZ
	);
	ALTER TABLE render_jobs ADD COLUMN IF NOT EXISTS owner TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS render_jobs_status_idx ON render_jobs (status);
	CREATE INDEX IF NOT EXISTS render_jobs_created_idx ON render_jobs (created_at DESC);
`

const selectColumns = `
	SELECT id, status, progress, steps, params, owner, error, output_reference,
		created_at, updated_at, started_at, finished_at
	FROM render_jobs
`

// defaultListLimit caps List when the caller gives no limit.
const defaultListLimit = 100

// JobRepository persists render jobs in Postgres.
type JobRepository struct {
	db *database.DB
}

var (
	_ job.Store  = (*JobRepository)(nil)
	_ job.Lister = (*JobRepository)(nil)
)

func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the render_jobs table when missing.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool().Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	steps, params, err := encodeJSON(j)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO render_jobs (id, status, progress, steps, params, owner, error, output_reference,
			created_at, updated_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		j.ID, j.Status, j.Progress, steps, params, j.Owner, j.Error, j.OutputRef,
		j.Created, j.Updated, j.Started, j.Finished,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrJobExists
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := scanJob(r.db.Pool().QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// List returns records newest first. An empty owner matches every record.
func (r *JobRepository) List(ctx context.Context, f job.ListFilter) ([]*job.Job, error) {
	query := selectColumns + `
		WHERE ($1 = '' OR owner = $1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Pool().Query(ctx, query, f.Owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j      job.Job
		steps  []byte
		params []byte
	)
	err := row.Scan(
		&j.ID,
		&j.Status,
		&j.Progress,
		&steps,
		&params,
		&j.Owner,
		&j.Error,
		&j.OutputRef,
		&j.Created,
		&j.Updated,
		&j.Started,
		&j.Finished,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &j.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps of job %s: %w", j.ID, err)
	}
	if j.Steps == nil {
		j.Steps = []job.Step{}
	}
	if err := json.Unmarshal(params, &j.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of job %s: %w", j.ID, err)
	}
	return &j, nil
}

// Put overwrites every mutable column of an existing record.
func (r *JobRepository) Put(ctx context.Context, j *job.Job) error {
	steps, _, err := encodeJSON(j)
	if err != nil {
		return err
	}

	query := `
		UPDATE render_jobs
		SET status = $2, progress = $3, steps = $4, error = $5, output_reference = $6,
			updated_at = $7, started_at = $8, finished_at = $9
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		j.ID, j.Status, j.Progress, steps, j.Error, j.OutputRef,
		j.Updated, j.Started, j.Finished,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

// CountByStatus reports how many records are in each status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT status, COUNT(*) FROM render_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.Status]int64)
	for rows.Next() {
		var (
			status job.Status
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func encodeJSON(j *job.Job) (steps, params []byte, err error) {
	s := j.Steps
	if s == nil {
		s = []job.Step{}
	}
	if steps, err = json.Marshal(s); err != nil {
		return nil, nil, fmt.Errorf("failed to encode steps: %w", err)
	}
	if params, err = json.Marshal(j.Params); err != nil {
		return nil, nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return steps, params, nil
}
