package queue

import "errors"

// Queue errors.
var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrTaskNotFound    = errors.New("task not found")
	ErrQueueClosed     = errors.New("queue is closed")
)
