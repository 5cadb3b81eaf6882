package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/buildinfo"
	"github.com/daylogger/daylog/pkg/db"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/observability"
	"github.com/daylogger/daylog/pkg/orchestrator"
	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/report"
	"github.com/daylogger/daylog/pkg/schedule"
	"github.com/daylogger/daylog/pkg/store"
	"github.com/daylogger/daylog/pkg/workers"
)

// Worker command flags.
var (
	workerMetricsAddr  string
	workerProcessCount int
	recoverInterval    time.Duration
)

// NewWorkerCommand creates the worker command: long-running pools that
// drain the process, report, and schedule queues.
func NewWorkerCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "worker",
		Short: "Run the queue worker pools",
		Long: `Run worker pools for the processing, report, and schedule queues.
Workers dequeue tasks under a visibility timeout, retry transient
failures with backoff, and move poisoned tasks to the dead letter
queue. Metrics, build info, and health are served over HTTP.

Examples:
  daylog worker                              Run with defaults
  daylog worker --process-workers 8 --metrics-addr :9090`,
		RunE: func(c *cobra.Command, args []string) error {
			return runWorker(c.Context(), app)
		},
	}

	c.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "HTTP listen address for /metrics, /version, /healthz")
	c.Flags().IntVar(&workerProcessCount, "process-workers", 0, "Process pool size (0 uses the default)")
	c.Flags().DurationVar(&recoverInterval, "recover-interval", 30*time.Second, "Stale task recovery interval")

	return c
}

func runWorker(ctx context.Context, app *App) error {
	cfg, err := app.Config()
	if err != nil {
		return err
	}
	logger := app.Logger().With(logging.F("component", "worker"))

	pool, err := app.Pool(ctx)
	if err != nil {
		return err
	}
	rdb, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	// Metrics registry: pipeline metrics, pool stats, and runtime collectors.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		db.NewPoolStatsCollector(pool, "daylog", "daylog-worker"),
	)
	metrics := observability.NewPipelineMetrics(reg)
	app.SetMetrics(metrics)

	orch, err := app.Orchestrator(ctx)
	if err != nil {
		return err
	}
	composer, err := app.Composer(ctx)
	if err != nil {
		return err
	}
	distributor := schedule.New(cfg.Pipeline.DailyCapacityMinutes)
	workItems := store.NewWorkItemRepository(pool, logger)

	policy := queue.PolicyFromConfig(cfg.Pipeline.Retry)
	queues := make(map[string]*queue.RedisQueue)
	for name, qc := range queue.DefaultConfigs() {
		queues[name] = queue.NewRedisQueue(rdb, qc, policy)
	}
	defer func() {
		for _, q := range queues {
			q.Close()
		}
	}()

	manager := workers.NewPoolManager()
	for workerType, wc := range workers.DefaultWorkerConfigs() {
		q, ok := queues[wc.QueueName]
		if !ok {
			return fmt.Errorf("no queue configured for %s", wc.QueueName)
		}
		if workerType == workers.WorkerTypeProcess && workerProcessCount > 0 {
			wc.Count = workerProcessCount
		}

		var handler workers.TaskHandler
		switch workerType {
		case workers.WorkerTypeProcess:
			handler = processHandler(orch)
		case workers.WorkerTypeReport:
			handler = reportHandler(composer)
		case workers.WorkerTypeSchedule:
			handler = scheduleHandler(workItems, distributor, logger)
		default:
			return fmt.Errorf("no handler for worker type %s", workerType)
		}
		manager.RegisterPool(workers.NewPool(wc, q, handler, logger))
	}

	srv := &http.Server{Addr: workerMetricsAddr, Handler: workerMux(reg, manager)}
	go func() {
		logger.Info("metrics server listening", logging.F("addr", workerMetricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()

	manager.StartAll()
	logger.Info("worker pools started", logging.F("version", buildinfo.Version))

	// Periodically re-queue tasks whose visibility timeout expired and
	// keep the queue depth gauges current.
	ticker := time.NewTicker(recoverInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			for name, q := range queues {
				if err := q.RecoverStaleTasks(); err != nil {
					logger.Warn("stale task recovery failed",
						logging.F("queue", name), logging.Err(err))
				}
				if depth, err := q.Depth(); err == nil {
					metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
				}
			}
		}
	}

	logger.Info("shutting down worker pools")
	manager.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("worker stopped")
	return nil
}

// workerMux serves metrics, build info, health, and pool stats.
func workerMux(reg *prometheus.Registry, manager *workers.PoolManager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/version", buildinfo.Handler("daylog-worker"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = printJSON(w, manager.AllStats())
	})
	return mux
}

// processHandler runs the inference pipeline for one queued message.
func processHandler(orch *orchestrator.Orchestrator) workers.TaskHandler {
	return func(ctx context.Context, task queue.Task) error {
		t, ok := task.(*queue.ProcessTask)
		if !ok {
			return fmt.Errorf("unexpected task type %T on process queue", task)
		}
		_, err := orch.ProcessMessage(ctx, t.MessageID)
		return err
	}
}

// reportHandler generates a report for the queued period.
func reportHandler(composer *report.Composer) workers.TaskHandler {
	return func(ctx context.Context, task queue.Task) error {
		t, ok := task.(*queue.ReportTask)
		if !ok {
			return fmt.Errorf("unexpected task type %T on report queue", task)
		}
		_, err := composer.Generate(ctx, t.UserID, t.ReportType, t.PeriodStart, t.PeriodEnd, t.Template)
		return err
	}
}

// scheduleHandler recomputes the weekly distribution for a user. Schedules
// are derived data; the result is logged, not stored.
func scheduleHandler(workItems *store.WorkItemRepository, d *schedule.Distributor, logger logging.Logger) workers.TaskHandler {
	return func(ctx context.Context, task queue.Task) error {
		t, ok := task.(*queue.ScheduleTask)
		if !ok {
			return fmt.Errorf("unexpected task type %T on schedule queue", task)
		}
		items, err := workItems.ListOpen(ctx, t.UserID)
		if err != nil {
			return err
		}
		days, overflow := d.Distribute(items, t.WeekStart)
		logger.Info("weekly schedule computed",
			logging.F("user_id", t.UserID),
			logging.F("days", len(days)),
			logging.F("items", len(items)),
			logging.F("overflow_minutes", overflow))
		return nil
	}
}
