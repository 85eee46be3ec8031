package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// This file contains the models backing the task record store

type TaskStatus string

const (
	TsQueued  TaskStatus = "queued"
	TsRunning TaskStatus = "running"
	TsSuccess TaskStatus = "success"
	TsFailed  TaskStatus = "failed"
)

// Terminal returns true once the task can no longer change state
func (s TaskStatus) Terminal() bool {
	return s == TsSuccess || s == TsFailed
}

// JSONMap is a key/value bag stored as a JSON column. A nil map is stored as
// SQL NULL, which is how the record store distinguishes "no result yet" from
// an empty result.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Clone returns a shallow copy so that the engine never mutates a caller's map
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TaskRecord is a model representing the `tasks` table. One row is one
// asynchronous execution of a registered handler; rows are never deleted, so
// failed attempts stay queryable forever.
type TaskRecord struct {
	ID           string      `db:"id" json:"id"`
	TaskType     string      `db:"task_type" json:"task_type"`
	Status       TaskStatus  `db:"status" json:"status"`
	ResourceType null.String `db:"resource_type" json:"resource_type"`
	ResourceID   null.String `db:"resource_id" json:"resource_id"`
	Params       JSONMap     `db:"params" json:"params"`
	Result       JSONMap     `db:"result" json:"result"`
	Error        null.String `db:"error" json:"error"`
	RetryOf      null.String `db:"retry_of" json:"retry_of"`
	CreatedBy    null.String `db:"created_by" json:"created_by"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	StartedAt    null.Time   `db:"started_at" json:"started_at"`
	FinishedAt   null.Time   `db:"finished_at" json:"finished_at"`
}

// AuditLog is a model representing the `audit_logs` table
type AuditLog struct {
	ID           int64       `db:"id" json:"id"`
	Action       string      `db:"action" json:"action"`
	ResourceType null.String `db:"resource_type" json:"resource_type"`
	ResourceID   null.String `db:"resource_id" json:"resource_id"`
	Username     null.String `db:"username" json:"username"`
	Detail       JSONMap     `db:"detail" json:"detail"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}
