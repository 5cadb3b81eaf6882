// Package cmd provides CLI commands for the daylog tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/analyzer"
	"github.com/daylogger/daylog/pkg/db"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/matcher"
	"github.com/daylogger/daylog/pkg/observability"
	"github.com/daylogger/daylog/pkg/orchestrator"
	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/report"
	"github.com/daylogger/daylog/pkg/router"
	"github.com/daylogger/daylog/pkg/store"
	"github.com/daylogger/daylog/pkg/tickets"
)

// App holds lazily-initialized shared dependencies for CLI commands.
// Commands only pay for the connections they actually use: a schedule
// preview never dials Redis, a submit without --now never builds the
// inference client.
type App struct {
	// ConfigPath and flags are set by the root command before any
	// subcommand runs.
	ConfigPath   string
	OutputFormat string
	Debug        bool

	cfg     *config.Config
	logger  logging.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	metrics *observability.PipelineMetrics
}

// NewApp creates an App. Connections are established on first use.
func NewApp() *App {
	return &App{}
}

// Config loads and caches the configuration.
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// Logger returns the shared logger, building it from config on first use.
// Logs go to stderr so command output stays pipeable.
func (a *App) Logger() logging.Logger {
	if a.logger != nil {
		return a.logger
	}
	lc := &logging.Config{
		Level:       logging.LevelInfo,
		ServiceName: "daylog",
		Output:      os.Stderr,
	}
	if cfg, err := a.Config(); err == nil {
		lc.Level = logging.Level(cfg.Logging.Level)
		lc.JSONFormat = cfg.Logging.JSONFormat
	}
	if a.Debug {
		lc.Level = logging.LevelDebug
	}
	a.logger = logging.NewLogger(lc)
	return a.logger
}

// Metrics returns the shared pipeline metrics, registered on the default
// Prometheus registerer unless SetMetrics installed a registry-backed set
// first (the worker does, so its /metrics endpoint owns the series).
func (a *App) Metrics() *observability.PipelineMetrics {
	if a.metrics == nil {
		a.metrics = observability.DefaultPipelineMetrics()
	}
	return a.metrics
}

// SetMetrics installs pre-registered pipeline metrics. Must be called
// before Orchestrator.
func (a *App) SetMetrics(m *observability.PipelineMetrics) {
	a.metrics = m
}

// Pool returns the shared database pool, connecting on first use.
func (a *App) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	pool, err := db.ConnectWithRetry(ctx, db.FromAppConfig(cfg.Database), 3, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.pool = pool
	return pool, nil
}

// Redis returns the shared Redis client, connecting on first use.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	a.rdb = client
	return client, nil
}

// Orchestrator assembles the full pipeline from config and the shared
// connections.
func (a *App) Orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	pool, err := a.Pool(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.Logger()

	var sink observability.EventSink
	if rdb, err := a.Redis(ctx); err == nil {
		sink = observability.NewRedisEventSink(rdb)
	} else {
		logger.Warn("redis unavailable, completion events disabled", logging.Err(err))
	}

	metrics := a.Metrics()
	httpClient := analyzer.NewHTTPClient(cfg.Inference)
	extractClient := analyzer.NewInstrumentedClient(httpClient, metrics, "extract", cfg.Inference.Model)
	rankClient := analyzer.NewInstrumentedClient(httpClient, metrics, "rank", cfg.Inference.Model)
	deps := orchestrator.Deps{
		Messages:    store.NewMessageRepository(pool, logger),
		WorkItems:   store.NewWorkItemRepository(pool, logger),
		Suggestions: store.NewSuggestionRepository(pool, logger),
		Tickets:     tickets.NewRepository(pool, logger),
		Analyzer:    analyzer.New(extractClient, cfg.Pipeline, cfg.Inference, logger),
		Matcher:     matcher.New(rankClient, cfg.Pipeline, cfg.Inference, logger),
		Router:      router.New(cfg.Pipeline),
		Sink:        sink,
		Metrics:     metrics,
		Logger:      logger,
	}
	return orchestrator.New(deps, cfg.Pipeline.Retry), nil
}

// Composer assembles the report composer from the shared pool.
func (a *App) Composer(ctx context.Context) (*report.Composer, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	pool, err := a.Pool(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.Logger()
	return report.New(
		store.NewWorkItemRepository(pool, logger),
		store.NewReportRepository(pool, logger),
		cfg.Pipeline.HighThreshold,
		logger,
	), nil
}

// Queue opens the named task queue on the shared Redis client.
func (a *App) Queue(ctx context.Context, name string) (*queue.RedisQueue, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	rdb, err := a.Redis(ctx)
	if err != nil {
		return nil, err
	}
	qc, ok := queue.DefaultConfigs()[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", name)
	}
	return queue.NewRedisQueue(rdb, qc, queue.PolicyFromConfig(cfg.Pipeline.Retry)), nil
}

// Close releases the shared connections.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTimeFlag accepts dates as 2006-01-02 or full RFC3339 timestamps.
// Bare dates are interpreted as local midnight.
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use 2006-01-02 or RFC3339", s)
	}
	return t, nil
}

// periodBounds derives [start, end) from a report type and a reference
// day. Weekly periods start on Monday; monthly on the 1st.
func periodBounds(typ string, ref time.Time) (time.Time, time.Time, error) {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	switch strings.ToLower(typ) {
	case "daily":
		return day, day.AddDate(0, 0, 1), nil
	case "weekly":
		// Weekday() is Sunday-based; shift so Monday is day zero.
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case "monthly":
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown report type %q", typ)
	}
}
