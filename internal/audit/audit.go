// Package audit is the append-only trail of administrative actions. Writes
// happen after the action they describe and must never fail it.
package audit

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"dockhand/internal/models"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	// sqlite's INTEGER PRIMARY KEY is a rowid alias; postgres needs an
	// explicit identity column
	idColumn := `id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,`
	if s.db.DriverName() == "sqlite" {
		idColumn = `id INTEGER PRIMARY KEY,`
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
    ` + idColumn + `
    action        TEXT NOT NULL,
    resource_type TEXT,
    resource_id   TEXT,
    username      TEXT,
    detail        TEXT,
    created_at    TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Entry describes one administrative action
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Username     string
	Detail       models.JSONMap
}

// Write appends an entry. Failures are logged on the operator channel and
// swallowed; auditing must not break the action being audited.
func (s *Store) Write(ctx context.Context, entry Entry) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_logs (action, resource_type, resource_id, username, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, entry.Action, nullable(entry.ResourceType), nullable(entry.ResourceID), nullable(entry.Username), entry.Detail, time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Str("action", entry.Action).Msg("Could not write audit log")
	}
}

// List returns the newest entries first, bounded by limit
func (s *Store) List(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := s.db.SelectContext(ctx, &entries, `SELECT * FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func nullable(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
