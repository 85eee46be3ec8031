package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"

	"dockhand/internal/models"
	"dockhand/internal/tasklog"
)

// DefaultMaxWorkers is the worker pool size when the caller does not choose one
const DefaultMaxWorkers = 4

// Manager accepts enqueue requests, persists records, and drives each task
// through queued → running → {success, failed} on a fixed-size worker pool.
// Exactly one worker ever executes a given task id, so per-task transitions
// are totally ordered. Construct one per process and pass it to the API
// layer; lifecycle is owned by the entry point.
type Manager struct {
	store    *Store
	registry *Registry
	logs     *tasklog.Sink

	mu      sync.Mutex
	pending []string
	notify  chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
}

// EnqueueRequest carries everything needed to create a task. RetryOf is set
// only by Retry; resource tags are display/audit metadata and never influence
// scheduling.
type EnqueueRequest struct {
	TaskType     string
	Params       models.JSONMap
	CreatedBy    string
	ResourceType string
	ResourceID   string
	RetryOf      string
}

// NewManager creates the manager and starts its worker pool
func NewManager(store *Store, registry *Registry, logs *tasklog.Sink, maxWorkers int) *Manager {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	m := &Manager{
		store:    store,
		registry: registry,
		logs:     logs,
		notify:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	m.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go m.worker()
	}
	return m
}

// Close stops the pool. In-flight handlers run to completion; tasks that were
// queued but never picked up stay in the queued state, the same operator-visible
// gap as records stranded in running by a process crash.
func (m *Manager) Close() {
	close(m.quit)
	m.wg.Wait()
}

// Enqueue validates the task type, persists the record with status=queued and
// submits it to the pool. The record is durable before Enqueue returns, so a
// caller can immediately query the task even when every worker is busy.
// Enqueue never blocks on pool availability.
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if !m.registry.Has(req.TaskType) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTaskType, req.TaskType)
	}

	taskID := NewID()
	params := req.Params.Clone()
	if params == nil {
		params = models.JSONMap{}
	}
	params[ParamTaskID] = taskID

	rec := &models.TaskRecord{
		ID:           taskID,
		TaskType:     req.TaskType,
		Status:       models.TsQueued,
		ResourceType: nullable(req.ResourceType),
		ResourceID:   nullable(req.ResourceID),
		Params:       params,
		RetryOf:      nullable(req.RetryOf),
		CreatedBy:    nullable(req.CreatedBy),
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return "", err
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "-"
	}
	m.logs.Append(taskID, fmt.Sprintf("# queued task_type=%s created_by=%s", req.TaskType, createdBy))

	m.submit(taskID)
	return taskID, nil
}

// Get returns the record for a task id
func (m *Manager) Get(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	return m.store.Get(ctx, taskID)
}

// List returns the newest records first, bounded by limit
func (m *Manager) List(ctx context.Context, limit int) ([]models.TaskRecord, error) {
	return m.store.List(ctx, limit)
}

// Retry creates a fresh task from a failed one, reusing its type, params and
// resource tags and linking the new record via retry_of. The original record
// is never mutated, so every attempt stays in the audit trail.
func (m *Manager) Retry(ctx context.Context, taskID, createdBy string) (string, error) {
	rec, err := m.store.Get(ctx, taskID)
	if err != nil {
		return "", err
	}
	if rec.Status != models.TsFailed {
		return "", fmt.Errorf("%w: task %s is %s", ErrNotRetryable, taskID, rec.Status)
	}

	return m.Enqueue(ctx, EnqueueRequest{
		TaskType:     rec.TaskType,
		Params:       rec.Params,
		CreatedBy:    createdBy,
		ResourceType: rec.ResourceType.ValueOrZero(),
		ResourceID:   rec.ResourceID.ValueOrZero(),
		RetryOf:      rec.ID,
	})
}

// ReadLogTail returns the last tailLines lines of the task's log
func (m *Manager) ReadLogTail(taskID string, tailLines int) (string, error) {
	return m.logs.ReadTail(taskID, tailLines)
}

func (m *Manager) submit(taskID string) {
	m.mu.Lock()
	m.pending = append(m.pending, taskID)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		taskID, ok := m.next()
		if !ok {
			return
		}
		m.execute(taskID)
	}
}

// next pops the oldest pending task id, blocking until one is available or
// the pool is closed
func (m *Manager) next() (string, bool) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			taskID := m.pending[0]
			m.pending = m.pending[1:]
			remaining := len(m.pending)
			m.mu.Unlock()

			// keep a wakeup token around for the other workers
			if remaining > 0 {
				select {
				case m.notify <- struct{}{}:
				default:
				}
			}
			return taskID, true
		}
		m.mu.Unlock()

		select {
		case <-m.quit:
			return "", false
		case <-m.notify:
		}
	}
}

// execute runs one task on a worker goroutine. Every handler fault, panics
// included, is converted to a failed record here; nothing may escape and kill
// the worker, or the pool silently loses a slot.
func (m *Manager) execute(taskID string) {
	ctx := context.Background()

	rec, err := m.store.Get(ctx, taskID)
	if err != nil {
		// defensive: the record was persisted before submission
		log.Error().Err(err).Str("task_id", taskID).Msg("Could not load task for execution")
		return
	}

	startedAt := time.Now().UTC()
	if err := m.store.MarkRunning(ctx, taskID, startedAt); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("Could not mark task running")
		return
	}
	m.logs.Append(taskID, fmt.Sprintf("# running started_at=%s", startedAt.Format(time.RFC3339)))

	var result models.JSONMap
	var handlerErr error
	if handler, ok := m.registry.Get(rec.TaskType); ok {
		result, handlerErr = invoke(handler, rec.Params)
	} else {
		handlerErr = fmt.Errorf("no handler registered for task type %s", rec.TaskType)
	}

	finishedAt := time.Now().UTC()
	if handlerErr != nil {
		if err := m.store.MarkFailed(ctx, taskID, handlerErr.Error(), finishedAt); err != nil {
			log.Error().Err(err).Str("task_id", taskID).Msg("Could not mark task failed")
		}
		m.logs.Append(taskID, fmt.Sprintf("# failed error=%s", firstLine(handlerErr.Error())))
		log.Error().
			Err(handlerErr).
			Str("task_id", taskID).
			Str("task_type", rec.TaskType).
			Msg("Task failed")
		return
	}

	if err := m.store.MarkSuccess(ctx, taskID, result, finishedAt); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("Could not mark task success")
	}
	m.logs.Append(taskID, fmt.Sprintf("# success finished_at=%s", finishedAt.Format(time.RFC3339)))
}

// invoke is the single boundary between the worker and the handler body. A
// panicking handler becomes an error with its stack so the failure text keeps
// the trace.
func invoke(handler Handler, params models.JSONMap) (result models.JSONMap, err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			err = fmt.Errorf("handler panicked: %v\n%s", rcv, debug.Stack())
		}
	}()
	return handler(params)
}

// NewID returns a fresh 32-character hex id, which always satisfies the log
// sink's safe-id pattern. Workspace ids share the format.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func nullable(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx != -1 {
		return text[:idx]
	}
	return text
}
