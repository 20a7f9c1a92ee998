package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-entry-credits/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// OutboxDispatchHandler is the go-job task that drains the outbox for each
// dispatch job a worker receives. Failed passes return the dispatcher error so
// the worker retry policy decides between redelivery and the dead letter queue.
type OutboxDispatchHandler struct {
	runner core.OutboxDispatcherRunner
	logger glog.Logger
}

type HandlerOption func(*OutboxDispatchHandler)

func WithHandlerLogger(logger glog.Logger) HandlerOption {
	return func(h *OutboxDispatchHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewOutboxDispatchHandler(runner core.OutboxDispatcherRunner, opts ...HandlerOption) (*OutboxDispatchHandler, error) {
	if runner == nil {
		return nil, fmt.Errorf("gojob: outbox dispatcher is required")
	}
	handler := &OutboxDispatchHandler{
		runner: runner,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler, nil
}

func (h *OutboxDispatchHandler) GetID() string                        { return JobIDOutboxDispatch }
func (h *OutboxDispatchHandler) GetPath() string                      { return JobIDOutboxDispatch }
func (h *OutboxDispatchHandler) GetConfig() job.Config                { return job.Config{} }
func (h *OutboxDispatchHandler) GetHandler() func() error             { return func() error { return nil } }
func (h *OutboxDispatchHandler) GetHandlerConfig() job.HandlerOptions { return job.HandlerOptions{} }
func (h *OutboxDispatchHandler) GetEngine() job.Engine                { return nil }

// Execute runs one dispatch pass. Messages for any other job are terminal.
func (h *OutboxDispatchHandler) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if h == nil || h.runner == nil {
		return fmt.Errorf("gojob: outbox dispatch handler is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDOutboxDispatch {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		reason := fmt.Sprintf("gojob: unsupported job %q", jobID)
		return job.NewTerminalError("unsupported_job", reason, nil)
	}

	stats, err := h.runner.DispatchPending(ctx, BatchSize(msg.Parameters))
	if err != nil {
		h.logger.Warn("outbox dispatch job failed",
			"job_id", msg.JobID,
			"claimed", stats.Claimed,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"error", err.Error(),
		)
		return err
	}
	h.logger.Debug("outbox dispatch job finished",
		"job_id", msg.JobID,
		"claimed", stats.Claimed,
		"delivered", stats.Delivered,
	)
	return nil
}

// Register adds the dispatch task to w.
func (h *OutboxDispatchHandler) Register(w *worker.Worker) error {
	if w == nil {
		return fmt.Errorf("gojob: worker is required")
	}
	return w.Register(h)
}

// BatchSize reads the batch_size job parameter. Zero lets the dispatcher use
// its configured default.
func BatchSize(params map[string]any) int {
	raw, ok := params["batch_size"]
	if !ok {
		return 0
	}
	switch value := raw.(type) {
	case int:
		return max(value, 0)
	case int64:
		return max(int(value), 0)
	case float64:
		return max(int(value), 0)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return max(parsed, 0)
	default:
		return 0
	}
}

// WorkerHook reports go-job worker lifecycle events through the entry credit
// logger and metrics recorder.
type WorkerHook struct {
	logger  glog.Logger
	metrics core.MetricsRecorder
}

func NewWorkerHook(logger glog.Logger, metrics core.MetricsRecorder) *WorkerHook {
	if logger == nil {
		logger = glog.Nop()
	}
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &WorkerHook{logger: logger, metrics: metrics}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.record(ctx, "start", event)
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, "success", event)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, "failure", event)
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, "retry", event)
}

func (h *WorkerHook) record(ctx context.Context, status string, event worker.Event) {
	if h == nil {
		return
	}
	jobID := jobIDOf(event)
	tags := map[string]string{"job_id": jobID, "status": status}
	h.metrics.IncCounter(ctx, "entry_credits.jobs.total", 1, tags)
	if event.Duration > 0 {
		h.metrics.ObserveHistogram(ctx, "entry_credits.jobs.duration_seconds", event.Duration.Seconds(), tags)
	}

	args := []any{"job_id", jobID, "attempt", event.Attempt, "status", status}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	switch status {
	case "failure":
		h.logger.Error("outbox worker job failed", args...)
	case "retry":
		h.logger.Warn("outbox worker job retrying", args...)
	default:
		h.logger.Debug("outbox worker job "+status, args...)
	}
}

func jobIDOf(event worker.Event) string {
	var message *job.ExecutionMessage
	if event.Message != nil {
		message = event.Message
	} else if event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return strings.TrimSpace(message.JobID)
}

var (
	_ job.Task    = (*OutboxDispatchHandler)(nil)
	_ worker.Hook = (*WorkerHook)(nil)
)
