package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/adapters/gologger"
	"github.com/goliatone/go-entry-credits/core"
	jobsql "github.com/goliatone/go-job/queue/adapters/postgres"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	QueueTable       = "entry_credits_jobs"
	QueueDLQTable    = "entry_credits_jobs_dlq"
	QueueStatusTable = "entry_credits_job_status"

	defaultIdleDelay = 250 * time.Millisecond
)

type RuntimeConfig struct {
	// Dialect is "sqlite" or "postgres".
	Dialect           string
	Concurrency       int
	IdleDelay         time.Duration
	VisibilityTimeout time.Duration
	Retry             RetryPolicy
	Logger            glog.Logger
	Metrics           core.MetricsRecorder
}

// Runtime owns the SQL backed job queue and the worker that executes outbox
// dispatch jobs from it.
type Runtime struct {
	db       *sql.DB
	queue    *jobsql.Adapter
	worker   *worker.Worker
	enqueuer *EnqueuerAdapter
	logger   glog.Logger
}

// NewSQLQueue creates the queue tables on db and returns the go-job adapter.
func NewSQLQueue(ctx context.Context, db *sql.DB, dialect string, visibility time.Duration) (*jobsql.Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: database is required")
	}
	opts := []jobsql.Option{
		jobsql.WithTableName(QueueTable),
		jobsql.WithDLQTableName(QueueDLQTable),
		jobsql.WithStatusTableName(QueueStatusTable),
	}
	switch strings.TrimSpace(dialect) {
	case "", string(jobsql.DialectSQLite):
		opts = append(opts, jobsql.WithDialect(jobsql.DialectSQLite))
	case string(jobsql.DialectPostgres):
		opts = append(opts, jobsql.WithDialect(jobsql.DialectPostgres))
	default:
		return nil, fmt.Errorf("gojob: unsupported queue dialect %q", dialect)
	}
	if visibility > 0 {
		opts = append(opts, jobsql.WithVisibilityTimeout(visibility))
	}
	storage := jobsql.NewStorage(db, opts...)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate queue tables: %w", err)
	}
	return jobsql.NewAdapter(storage), nil
}

// NewRuntime builds the queue on db and registers handler on a new worker.
// The worker does not consume jobs until Start is called.
func NewRuntime(ctx context.Context, db *sql.DB, handler *OutboxDispatchHandler, cfg RuntimeConfig) (*Runtime, error) {
	if handler == nil {
		return nil, fmt.Errorf("gojob: outbox dispatch handler is required")
	}
	queue, err := NewSQLQueue(ctx, db, cfg.Dialect, cfg.VisibilityTimeout)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	idle := cfg.IdleDelay
	if idle <= 0 {
		idle = defaultIdleDelay
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	w := worker.NewWorker(queue,
		worker.WithConcurrency(concurrency),
		worker.WithIdleDelay(idle),
		worker.WithRetryPolicy(cfg.Retry.WorkerPolicy()),
		worker.WithLogger(gologger.ToJobLogger(logger)),
		worker.WithHooks(NewWorkerHook(logger, cfg.Metrics)),
	)
	if err := handler.Register(w); err != nil {
		return nil, fmt.Errorf("gojob: register outbox task: %w", err)
	}
	return &Runtime{
		db:       db,
		queue:    queue,
		worker:   w,
		enqueuer: NewEnqueuerAdapter(queue),
		logger:   logger,
	}, nil
}

// Enqueuer is passed to core.WithJobEnqueuer so committed ingests request a
// dispatch pass.
func (r *Runtime) Enqueuer() *EnqueuerAdapter {
	if r == nil {
		return nil
	}
	return r.enqueuer
}

func (r *Runtime) Start(ctx context.Context) error {
	if r == nil || r.worker == nil {
		return fmt.Errorf("gojob: runtime is not configured")
	}
	return r.worker.Start(ctx)
}

func (r *Runtime) Stop(ctx context.Context) error {
	if r == nil || r.worker == nil {
		return nil
	}
	return r.worker.Stop(ctx)
}

// Sweep enqueues one dispatch job per tick until ctx is cancelled. It picks up
// outbox events whose retry backoff elapsed after the job that claimed them
// finished.
func (r *Runtime) Sweep(ctx context.Context, interval time.Duration, batchSize int) {
	if r == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
				JobID:      JobIDOutboxDispatch,
				ScriptPath: JobIDOutboxDispatch,
				Parameters: map[string]any{"batch_size": batchSize},
			})
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox sweep enqueue failed", "error", err.Error())
			}
		}
	}
}
