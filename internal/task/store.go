package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"dockhand/internal/models"
)

// Store is the durable record of task identity, status, params, result and
// timestamps. Every state transition is a single guarded UPDATE keyed on the
// current status, so the queued → running → terminal order holds even if a
// transition is attempted twice.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tasks table and its indexes if they do not exist.
// The SQL is portable between postgres and sqlite.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
    id            TEXT PRIMARY KEY,
    task_type     TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'queued',
    resource_type TEXT,
    resource_id   TEXT,
    params        TEXT,
    result        TEXT,
    error         TEXT,
    retry_of      TEXT,
    created_by    TEXT,
    created_at    TIMESTAMP NOT NULL,
    started_at    TIMESTAMP,
    finished_at   TIMESTAMP
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *models.TaskRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO tasks (id, task_type, status, resource_type, resource_id, params, result, error, retry_of, created_by, created_at, started_at, finished_at)
VALUES (:id, :task_type, :status, :resource_type, :resource_id, :params, :result, :error, :retry_of, :created_by, :created_at, :started_at, :finished_at)
`, rec)
	return err
}

func (s *Store) Get(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	var rec models.TaskRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM tasks WHERE id = $1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	} else if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the newest records first, bounded by limit
func (s *Store) List(ctx context.Context, limit int) ([]models.TaskRecord, error) {
	var records []models.TaskRecord
	err := s.db.SelectContext(ctx, &records, `SELECT * FROM tasks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRunning performs the queued → running transition, setting started_at
// exactly once
func (s *Store) MarkRunning(ctx context.Context, taskID string, at time.Time) error {
	return s.transition(ctx, `
UPDATE tasks
SET status     = $2,
    started_at = $3
WHERE id = $1
  AND status = $4
`, taskID, models.TsRunning, at, models.TsQueued)
}

// MarkSuccess performs the running → success transition. The result is never
// stored as NULL so that result presence and the success status agree.
func (s *Store) MarkSuccess(ctx context.Context, taskID string, result models.JSONMap, at time.Time) error {
	if result == nil {
		result = models.JSONMap{}
	}
	return s.transition(ctx, `
UPDATE tasks
SET status      = $2,
    result      = $3,
    error       = NULL,
    finished_at = $4
WHERE id = $1
  AND status = $5
`, taskID, models.TsSuccess, result, at, models.TsRunning)
}

// MarkFailed performs the running → failed transition, recording the failure
// text
func (s *Store) MarkFailed(ctx context.Context, taskID string, errText string, at time.Time) error {
	return s.transition(ctx, `
UPDATE tasks
SET status      = $2,
    error       = $3,
    result      = NULL,
    finished_at = $4
WHERE id = $1
  AND status = $5
`, taskID, models.TsFailed, errText, at, models.TsRunning)
}

func (s *Store) transition(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
