package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"dockhand/internal/audit"
	"dockhand/internal/config"
	"dockhand/internal/models"
	"dockhand/internal/task"
	"dockhand/internal/tasklog"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	defaultLogTail   = 200
)

type TaskRouter struct {
	conf    *config.DHConfig
	manager *task.Manager
	audit   *audit.Store
	router  chi.Router
}

func (t *TaskRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

func NewTaskRouter(conf *config.DHConfig, manager *task.Manager, auditStore *audit.Store) *TaskRouter {
	t := &TaskRouter{
		conf:    conf,
		manager: manager,
		audit:   auditStore,
		router:  chi.NewRouter(),
	}
	t.router.Get("/", t.ListTasks)
	t.router.Post("/", t.EnqueueTask)
	t.router.Get("/{taskID}", t.GetTask)
	t.router.Post("/{taskID}/retry", t.RetryTask)
	t.router.Get("/{taskID}/logs", t.GetTaskLogs)
	t.router.Get("/{taskID}/download", t.DownloadTaskFile)

	return t
}

func (t *TaskRouter) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 {
		limit = 1
	} else if limit > maxListLimit {
		limit = maxListLimit
	}

	records, err := t.manager.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		log.Error().Err(err).Msg("Failed to list tasks")
		return
	}
	serveJson(w, records)
}

func (t *TaskRouter) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var payload EnqueueTaskRequest
	if err := readJson(w, r, &payload); err != nil {
		return
	}
	if err := payload.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user := requestUser(r)
	taskID, err := t.manager.Enqueue(r.Context(), task.EnqueueRequest{
		TaskType:     payload.TaskType,
		Params:       payload.Params,
		CreatedBy:    user,
		ResourceType: payload.ResourceType,
		ResourceID:   payload.ResourceID,
	})
	if errors.Is(err, task.ErrUnknownTaskType) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		http.Error(w, "Could not enqueue task", http.StatusInternalServerError)
		log.Error().Err(err).Str("task_type", payload.TaskType).Msg("Could not enqueue task")
		return
	}

	t.audit.Write(r.Context(), audit.Entry{
		Action:       "task.enqueue",
		ResourceType: "task",
		ResourceID:   taskID,
		Username:     user,
		Detail:       map[string]any{"task_type": payload.TaskType},
	})

	w.WriteHeader(http.StatusAccepted)
	serveJson(w, EnqueueTaskResponse{TaskID: taskID})
}

func (t *TaskRouter) GetTask(w http.ResponseWriter, r *http.Request) {
	rec, err := t.manager.Get(r.Context(), chi.URLParam(r, "taskID"))
	if errors.Is(err, task.ErrTaskNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}
	serveJson(w, rec)
}

func (t *TaskRouter) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	user := requestUser(r)

	newID, err := t.manager.Retry(r.Context(), taskID, user)
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	case errors.Is(err, task.ErrNotRetryable):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "Could not retry task", http.StatusInternalServerError)
		log.Error().Err(err).Str("task_id", taskID).Msg("Could not retry task")
		return
	}

	t.audit.Write(r.Context(), audit.Entry{
		Action:       "task.retry",
		ResourceType: "task",
		ResourceID:   taskID,
		Username:     user,
		Detail:       map[string]any{"new_task_id": newID},
	})

	serveJson(w, RetryTaskResponse{OriginalTaskID: taskID, NewTaskID: newID})
}

func (t *TaskRouter) GetTaskLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	// task must exist even when its log does not
	if _, err := t.manager.Get(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to get task", http.StatusInternalServerError)
		}
		return
	}

	tail := queryInt(r, "tail", defaultLogTail)
	content, err := t.manager.ReadLogTail(taskID, tail)
	if errors.Is(err, tasklog.ErrLogNotFound) {
		http.Error(w, "Task log not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to read task log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

// DownloadTaskFile serves the file a successful export task produced. The
// path recorded in the result must resolve inside the exports or uploads
// roots.
func (t *TaskRouter) DownloadTaskFile(w http.ResponseWriter, r *http.Request) {
	rec, err := t.manager.Get(r.Context(), chi.URLParam(r, "taskID"))
	if errors.Is(err, task.ErrTaskNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}

	file, _ := rec.Result["file"].(string)
	if rec.Status != models.TsSuccess || file == "" {
		http.Error(w, "Task has no downloadable file", http.StatusBadRequest)
		return
	}

	filePath, err := filepath.Abs(file)
	if err != nil || !t.pathAllowed(filePath) {
		http.Error(w, "File path not allowed", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filePath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, filePath)
}

func (t *TaskRouter) pathAllowed(filePath string) bool {
	for _, dir := range []string{t.conf.Paths.ExportsDir, t.conf.Paths.UploadsDir} {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if strings.HasPrefix(filePath, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
