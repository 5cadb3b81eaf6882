package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using Redis sorted sets.
type RedisQueue struct {
	client     *redis.Client
	name       string
	config     Config
	policy     RetryPolicy
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewRedisQueue creates a Redis-backed queue.
func NewRedisQueue(client *redis.Client, config Config, policy RetryPolicy) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client:     client,
		name:       config.Name,
		config:     config,
		policy:     policy,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Redis key prefixes
const (
	keyPrefixQueue      = "queue:"      // main queue (sorted set by priority)
	keyPrefixProcessing = "processing:" // tasks currently owned by a worker
	keyPrefixTask       = "task:"       // task payloads
	keyPrefixDLQ        = "dlq:"        // dead letter queue
)

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.name
}

// Enqueue adds a task to the queue.
func (q *RedisQueue) Enqueue(task Task) error {
	return q.enqueueSingle(task)
}

func (q *RedisQueue) enqueueSingle(task Task) error {
	taskID := uuid.New().String()

	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	qt := &QueuedTask{
		ID:         taskID,
		Task:       taskBytes,
		TaskType:   task.GetTaskType(),
		Priority:   task.GetPriority(),
		RetryCount: 0,
		EnqueuedAt: time.Now(),
	}

	qtBytes, err := json.Marshal(qt)
	if err != nil {
		return fmt.Errorf("failed to marshal queued task: %w", err)
	}

	pipe := q.client.TxPipeline()

	taskKey := keyPrefixTask + q.name + ":" + taskID
	pipe.Set(q.ctx, taskKey, qtBytes, q.config.RetentionPeriod)

	// score = priority * 1e12 + timestamp for FIFO within a priority band
	queueKey := keyPrefixQueue + q.name
	score := float64(task.GetPriority())*1e12 + float64(time.Now().UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: taskID})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// EnqueueBatch adds multiple tasks to the queue.
func (q *RedisQueue) EnqueueBatch(tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	queueKey := keyPrefixQueue + q.name
	now := time.Now()

	for _, task := range tasks {
		taskID := uuid.New().String()

		taskBytes, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		qt := &QueuedTask{
			ID:         taskID,
			Task:       taskBytes,
			TaskType:   task.GetTaskType(),
			Priority:   task.GetPriority(),
			RetryCount: 0,
			EnqueuedAt: now,
		}

		qtBytes, err := json.Marshal(qt)
		if err != nil {
			return fmt.Errorf("failed to marshal queued task: %w", err)
		}

		taskKey := keyPrefixTask + q.name + ":" + taskID
		pipe.Set(q.ctx, taskKey, qtBytes, q.config.RetentionPeriod)

		score := float64(task.GetPriority())*1e12 + float64(now.UnixNano())
		pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: taskID})
	}

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("failed to enqueue batch: %w", err)
	}
	return nil
}

// Dequeue retrieves tasks from the queue.
func (q *RedisQueue) Dequeue(maxTasks int, timeout time.Duration) ([]*QueuedTask, error) {
	if maxTasks <= 0 {
		maxTasks = 1
	}

	queueKey := keyPrefixQueue + q.name
	processingKey := keyPrefixProcessing + q.name
	deadline := time.Now().Add(timeout)

	var tasks []*QueuedTask

	for time.Now().Before(deadline) && len(tasks) < maxTasks {
		result, err := q.client.ZPopMax(q.ctx, queueKey, 1).Result()
		if errors.Is(err, redis.Nil) || len(result) == 0 {
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-q.ctx.Done():
				return tasks, q.ctx.Err()
			}
		}
		if err != nil {
			return tasks, fmt.Errorf("failed to pop from queue: %w", err)
		}

		taskID := result[0].Member.(string)
		taskKey := keyPrefixTask + q.name + ":" + taskID

		data, err := q.client.Get(q.ctx, taskKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// payload expired, skip
			continue
		}
		if err != nil {
			return tasks, fmt.Errorf("failed to get task data: %w", err)
		}

		var qt QueuedTask
		if err := json.Unmarshal(data, &qt); err != nil {
			return tasks, fmt.Errorf("failed to unmarshal task: %w", err)
		}

		visibleAfter := time.Now().Add(q.config.VisibilityTimeout)
		qt.VisibleAfter = visibleAfter

		updatedData, _ := json.Marshal(qt)
		pipe := q.client.TxPipeline()
		pipe.Set(q.ctx, taskKey, updatedData, q.config.RetentionPeriod)
		pipe.ZAdd(q.ctx, processingKey, redis.Z{
			Score:  float64(visibleAfter.UnixNano()),
			Member: taskID,
		})
		if _, err := pipe.Exec(q.ctx); err != nil {
			return tasks, fmt.Errorf("failed to move to processing: %w", err)
		}

		tasks = append(tasks, &qt)
	}

	return tasks, nil
}

// Ack acknowledges successful processing of a task.
func (q *RedisQueue) Ack(taskID string) error {
	processingKey := keyPrefixProcessing + q.name
	taskKey := keyPrefixTask + q.name + ":" + taskID

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, taskID)
	pipe.Del(q.ctx, taskKey)
	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	return nil
}

// Nack reports a processing failure. The task is re-enqueued with backoff
// until retries are exhausted, then parked in the dead letter queue.
func (q *RedisQueue) Nack(taskID string) error {
	processingKey := keyPrefixProcessing + q.name
	taskKey := keyPrefixTask + q.name + ":" + taskID

	data, err := q.client.Get(q.ctx, taskKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}

	var qt QueuedTask
	if err := json.Unmarshal(data, &qt); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	qt.RetryCount++

	if qt.RetryCount >= q.config.MaxRetries {
		return q.MoveToDeadLetter(taskID, "max retries exceeded")
	}

	queueKey := keyPrefixQueue + q.name
	backoff := q.policy.CalculateBackoff(qt.RetryCount)
	qt.VisibleAfter = time.Now().Add(backoff)

	updatedData, _ := json.Marshal(qt)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, taskID)
	pipe.Set(q.ctx, taskKey, updatedData, q.config.RetentionPeriod)
	score := float64(qt.Priority)*1e12 + float64(qt.VisibleAfter.UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: taskID})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("failed to nack task: %w", err)
	}
	return nil
}

// MoveToDeadLetter parks a task in the dead letter queue with a reason.
func (q *RedisQueue) MoveToDeadLetter(taskID string, reason string) error {
	processingKey := keyPrefixProcessing + q.name
	taskKey := keyPrefixTask + q.name + ":" + taskID
	dlqKey := keyPrefixDLQ + q.name

	data, err := q.client.Get(q.ctx, taskKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}

	dlqEntry := map[string]interface{}{
		"task":       string(data),
		"reason":     reason,
		"moved_at":   time.Now().Format(time.RFC3339),
		"queue_name": q.name,
	}
	dlqData, _ := json.Marshal(dlqEntry)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, taskID)
	pipe.Del(q.ctx, taskKey)
	pipe.ZAdd(q.ctx, dlqKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(dlqData),
	})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}
	return nil
}

// Depth returns the current queue depth.
func (q *RedisQueue) Depth() (int64, error) {
	queueKey := keyPrefixQueue + q.name
	return q.client.ZCard(q.ctx, queueKey).Result()
}

// Close closes the queue.
func (q *RedisQueue) Close() error {
	q.cancelFunc()
	return nil
}

// RecoverStaleTasks requeues tasks whose visibility timeout expired while a
// worker held them. Called periodically by the worker pool.
func (q *RedisQueue) RecoverStaleTasks() error {
	processingKey := keyPrefixProcessing + q.name
	queueKey := keyPrefixQueue + q.name

	now := float64(time.Now().UnixNano())
	stale, err := q.client.ZRangeByScore(q.ctx, processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to find stale tasks: %w", err)
	}

	for _, taskID := range stale {
		taskKey := keyPrefixTask + q.name + ":" + taskID

		data, err := q.client.Get(q.ctx, taskKey).Bytes()
		if errors.Is(err, redis.Nil) {
			q.client.ZRem(q.ctx, processingKey, taskID)
			continue
		}
		if err != nil {
			continue
		}

		var qt QueuedTask
		if err := json.Unmarshal(data, &qt); err != nil {
			continue
		}

		qt.RetryCount++

		if qt.RetryCount >= q.config.MaxRetries {
			q.MoveToDeadLetter(taskID, "visibility timeout exceeded")
			continue
		}

		updatedData, _ := json.Marshal(qt)
		pipe := q.client.TxPipeline()
		pipe.ZRem(q.ctx, processingKey, taskID)
		pipe.Set(q.ctx, taskKey, updatedData, q.config.RetentionPeriod)
		score := float64(qt.Priority)*1e12 + float64(time.Now().UnixNano())
		pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: taskID})
		pipe.Exec(q.ctx)
	}

	return nil
}

// Verify interface compliance
var _ Queue = (*RedisQueue)(nil)
