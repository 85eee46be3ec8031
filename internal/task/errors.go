package task

import "errors"

var (
	// ErrUnknownTaskType is returned by Enqueue when the task type has no
	// registered handler. No record is created in that case.
	ErrUnknownTaskType = errors.New("task type not registered")

	// ErrTaskNotFound is returned when no record exists for a task id
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRetryable is returned by Retry for any task that is not in the
	// failed state
	ErrNotRetryable = errors.New("only failed tasks can be retried")
)
