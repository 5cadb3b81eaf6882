// Package workers runs pools of queue-draining workers for the pipeline.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/queue"
)

// WorkerType identifies the kind of worker.
type WorkerType string

const (
	WorkerTypeProcess  WorkerType = "process"
	WorkerTypeReport   WorkerType = "report"
	WorkerTypeSchedule WorkerType = "schedule"
)

// WorkerStatus is the worker's current lifecycle state.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusHealthy  WorkerStatus = "healthy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// TaskHandler processes a dequeued task.
type TaskHandler func(ctx context.Context, task queue.Task) error

// WorkerConfig configures a worker.
type WorkerConfig struct {
	WorkerType        WorkerType    `yaml:"worker_type"`
	Count             int           `yaml:"count"`
	QueueName         string        `yaml:"queue_name"`
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DefaultWorkerConfigs returns default worker configurations per type.
func DefaultWorkerConfigs() map[WorkerType]WorkerConfig {
	return map[WorkerType]WorkerConfig{
		WorkerTypeProcess: {
			WorkerType:        WorkerTypeProcess,
			Count:             4,
			QueueName:         "daylog:process",
			BatchSize:         1,
			VisibilityTimeout: 300 * time.Second,
			PollInterval:      1 * time.Second,
			ShutdownTimeout:   120 * time.Second,
		},
		WorkerTypeReport: {
			WorkerType:        WorkerTypeReport,
			Count:             2,
			QueueName:         "daylog:report",
			BatchSize:         1,
			VisibilityTimeout: 120 * time.Second,
			PollInterval:      1 * time.Second,
			ShutdownTimeout:   60 * time.Second,
		},
		WorkerTypeSchedule: {
			WorkerType:        WorkerTypeSchedule,
			Count:             1,
			QueueName:         "daylog:schedule",
			BatchSize:         10,
			VisibilityTimeout: 60 * time.Second,
			PollInterval:      1 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
	}
}

// Worker drains one queue and hands tasks to its handler.
type Worker struct {
	ID           string
	Type         WorkerType
	Config       WorkerConfig
	Status       WorkerStatus
	Queue        queue.Queue
	Handler      TaskHandler
	StartedAt    time.Time
	LastActivity time.Time

	// Metrics
	ProcessedCount atomic.Int64
	FailedCount    atomic.Int64

	logger logging.Logger

	// Control
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(config WorkerConfig, q queue.Queue, handler TaskHandler, logger logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Worker{
		ID:      id,
		Type:    config.WorkerType,
		Config:  config,
		Status:  WorkerStatusStarting,
		Queue:   q,
		Handler: handler,
		logger: logger.With(
			logging.F("worker_id", id),
			logging.F("worker_type", string(config.WorkerType))),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         &sync.WaitGroup{},
	}
}

// Start begins draining the queue.
func (w *Worker) Start() {
	w.StartedAt = time.Now()
	w.Status = WorkerStatusHealthy
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop drains in-flight work and stops, bounded by the shutdown timeout.
func (w *Worker) Stop() {
	w.Status = WorkerStatusDraining
	w.cancelFunc()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.Status = WorkerStatusStopped
	case <-time.After(w.Config.ShutdownTimeout):
		w.Status = WorkerStatusStopped
	}
}

func (w *Worker) processLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			tasks, err := w.Queue.Dequeue(w.Config.BatchSize, w.Config.PollInterval)
			if err != nil {
				if err == w.ctx.Err() {
					return
				}
				w.logger.Warn("dequeue failed", logging.Err(err))
				time.Sleep(w.Config.PollInterval)
				continue
			}

			for _, qt := range tasks {
				if w.ctx.Err() != nil {
					return
				}
				w.processTask(qt)
			}
		}
	}
}

func (w *Worker) processTask(qt *queue.QueuedTask) {
	w.LastActivity = time.Now()

	task, err := qt.ParseTask()
	if err != nil {
		w.Queue.MoveToDeadLetter(qt.ID, fmt.Sprintf("parse error: %v", err))
		w.FailedCount.Add(1)
		return
	}

	// Leave headroom before the visibility timeout reclaims the task.
	ctx, cancel := context.WithTimeout(w.ctx, w.Config.VisibilityTimeout-10*time.Second)
	defer cancel()

	if err := w.Handler(ctx, task); err != nil {
		if dlerrors.IsRetryable(err) {
			w.Queue.Nack(qt.ID)
		} else {
			w.Queue.MoveToDeadLetter(qt.ID, err.Error())
		}
		w.FailedCount.Add(1)
		w.logger.Warn("task failed",
			logging.F("task_id", qt.ID),
			logging.F("task_type", string(qt.TaskType)),
			logging.F("retry_count", qt.RetryCount),
			logging.Err(err))
		return
	}

	w.Queue.Ack(qt.ID)
	w.ProcessedCount.Add(1)
}

// Pool manages a set of identical workers on one queue.
type Pool struct {
	Type    WorkerType
	Config  WorkerConfig
	Workers []*Worker
	Queue   queue.Queue
	Handler TaskHandler

	logger logging.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(config WorkerConfig, q queue.Queue, handler TaskHandler, logger logging.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		Type:    config.WorkerType,
		Config:  config,
		Queue:   q,
		Handler: handler,
		Workers: make([]*Worker, 0, config.Count),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts all workers in the pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Config.Count; i++ {
		worker := NewWorker(p.Config, p.Queue, p.Handler, p.logger)
		worker.Start()
		p.Workers = append(p.Workers, worker)
	}
	p.logger.Info("worker pool started",
		logging.F("worker_type", string(p.Type)),
		logging.F("count", p.Config.Count))
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var wg sync.WaitGroup
	for _, worker := range p.Workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		Type:        p.Type,
		WorkerCount: len(p.Workers),
	}

	for _, w := range p.Workers {
		if w.Status == WorkerStatusHealthy {
			stats.ActiveCount++
		}
		stats.Processed += w.ProcessedCount.Load()
		stats.Failed += w.FailedCount.Load()
	}

	return stats
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Type        WorkerType
	WorkerCount int
	ActiveCount int
	Processed   int64
	Failed      int64
}

// PoolManager manages the worker pools of one process.
type PoolManager struct {
	pools map[WorkerType]*Pool
	mu    sync.RWMutex
}

// NewPoolManager creates a pool manager.
func NewPoolManager() *PoolManager {
	return &PoolManager{
		pools: make(map[WorkerType]*Pool),
	}
}

// RegisterPool registers a worker pool.
func (pm *PoolManager) RegisterPool(pool *Pool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pools[pool.Type] = pool
}

// GetPool returns a pool by type.
func (pm *PoolManager) GetPool(workerType WorkerType) (*Pool, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	pool, ok := pm.pools[workerType]
	return pool, ok
}

// StartAll starts all registered pools.
func (pm *PoolManager) StartAll() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, pool := range pm.pools {
		pool.Start()
	}
}

// StopAll stops all registered pools.
func (pm *PoolManager) StopAll() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, pool := range pm.pools {
		wg.Add(1)
		go func(p *Pool) {
			defer wg.Done()
			p.Stop()
		}(pool)
	}
	wg.Wait()
}

// AllStats returns statistics for all pools.
func (pm *PoolManager) AllStats() map[WorkerType]PoolStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := make(map[WorkerType]PoolStats)
	for workerType, pool := range pm.pools {
		stats[workerType] = pool.Stats()
	}
	return stats
}
