package api

import (
	"errors"
	"strings"

	"dockhand/internal/models"
)

type EnqueueTaskRequest struct {
	TaskType     string         `json:"task_type"`
	Params       models.JSONMap `json:"params"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
}

func (e *EnqueueTaskRequest) validate() error {
	e.TaskType = strings.TrimSpace(e.TaskType)
	if e.TaskType == "" {
		return errors.New("task_type is empty")
	}
	return nil
}

type EnqueueTaskResponse struct {
	TaskID string `json:"task_id"`
}

type RetryTaskResponse struct {
	OriginalTaskID string `json:"original_task_id"`
	NewTaskID      string `json:"new_task_id"`
}
