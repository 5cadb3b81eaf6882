// Package queue provides the Redis-backed task queue that feeds the
// pipeline workers. Tasks are prioritized in a sorted set, held in a
// processing set under a visibility timeout while a worker owns them, and
// parked in a dead letter queue once retries are exhausted.
package queue

import (
	"encoding/json"
	"time"

	"github.com/daylogger/daylog/pkg/worklog"
)

// Priority levels for queued tasks.
type Priority int

const (
	PriorityLow    Priority = 0 // backfill and regeneration
	PriorityNormal Priority = 1 // batch ingest
	PriorityHigh   Priority = 2 // interactive submissions
)

// TaskType identifies the kind of queued task.
type TaskType string

const (
	TaskTypeProcess  TaskType = "process"
	TaskTypeReport   TaskType = "report"
	TaskTypeSchedule TaskType = "schedule"
)

// Task is the base interface for all queue tasks.
type Task interface {
	// GetUserID returns the user the task belongs to.
	GetUserID() string
	// GetPriority returns the task priority.
	GetPriority() Priority
	// GetTaskType returns the task type.
	GetTaskType() TaskType
}

// ProcessTask runs the inference pipeline for one stored message.
type ProcessTask struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Priority  Priority  `json:"priority"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (t *ProcessTask) GetUserID() string     { return t.UserID }
func (t *ProcessTask) GetPriority() Priority { return t.Priority }
func (t *ProcessTask) GetTaskType() TaskType { return TaskTypeProcess }

// ReportTask generates a report for a period.
type ReportTask struct {
	UserID      string             `json:"user_id"`
	ReportType  worklog.ReportType `json:"report_type"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Template    string             `json:"template,omitempty"`
	Priority    Priority           `json:"priority"`
}

func (t *ReportTask) GetUserID() string     { return t.UserID }
func (t *ReportTask) GetPriority() Priority { return t.Priority }
func (t *ReportTask) GetTaskType() TaskType { return TaskTypeReport }

// ScheduleTask distributes a user's open items across a week.
type ScheduleTask struct {
	UserID    string    `json:"user_id"`
	WeekStart time.Time `json:"week_start"`
	Priority  Priority  `json:"priority"`
}

func (t *ScheduleTask) GetUserID() string     { return t.UserID }
func (t *ScheduleTask) GetPriority() Priority { return t.Priority }
func (t *ScheduleTask) GetTaskType() TaskType { return TaskTypeSchedule }

// QueuedTask wraps a task with queue metadata.
type QueuedTask struct {
	ID           string          `json:"id"`
	Task         json.RawMessage `json:"task"`
	TaskType     TaskType        `json:"task_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"`
}

// ParseTask decodes the wrapped task based on its type.
func (qt *QueuedTask) ParseTask() (Task, error) {
	switch qt.TaskType {
	case TaskTypeProcess:
		var t ProcessTask
		if err := json.Unmarshal(qt.Task, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case TaskTypeReport:
		var t ReportTask
		if err := json.Unmarshal(qt.Task, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case TaskTypeSchedule:
		var t ScheduleTask
		if err := json.Unmarshal(qt.Task, &t); err != nil {
			return nil, err
		}
		return &t, nil
	default:
		return nil, ErrUnknownTaskType
	}
}

// Queue is the worker-facing task queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a task to the queue.
	Enqueue(task Task) error

	// EnqueueBatch adds multiple tasks to the queue.
	EnqueueBatch(tasks []Task) error

	// Dequeue retrieves up to maxTasks tasks, blocking for at most timeout.
	Dequeue(maxTasks int, timeout time.Duration) ([]*QueuedTask, error)

	// Ack acknowledges successful processing of a task.
	Ack(taskID string) error

	// Nack reports a processing failure; the task is retried with backoff
	// or parked in the dead letter queue.
	Nack(taskID string) error

	// MoveToDeadLetter parks a task without further retries.
	MoveToDeadLetter(taskID string, reason string) error

	// Depth returns the number of tasks waiting in the queue.
	Depth() (int64, error)

	// Close releases the queue's resources.
	Close() error
}

// Config configures queue behavior.
type Config struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultConfigs returns the default configuration per queue. Inference
// calls dominate the process queue, so its visibility timeout is generous.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		"daylog:process": {
			Name:              "daylog:process",
			VisibilityTimeout: 300 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		"daylog:report": {
			Name:              "daylog:report",
			VisibilityTimeout: 120 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		"daylog:schedule": {
			Name:              "daylog:schedule",
			VisibilityTimeout: 60 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
	}
}

// Verify interface compliance
var _ Task = (*ProcessTask)(nil)
var _ Task = (*ReportTask)(nil)
var _ Task = (*ScheduleTask)(nil)
