package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// JobIDOutboxDispatch is the only job the entry credit service enqueues.
const JobIDOutboxDispatch = core.JobIDOutboxDispatch

const (
	defaultMaxAttempts   = 5
	defaultRetryInterval = time.Second
	defaultMaxRetryDelay = time.Minute
)

// RetryPolicy bounds how often a failed dispatch job is redelivered before it
// is dead-lettered.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	MaxDelay    time.Duration
}

// WorkerPolicy converts p into the go-job exponential backoff policy.
func (p RetryPolicy) WorkerPolicy() worker.DefaultRetryPolicy {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}
	if maxDelay < interval {
		maxDelay = interval
	}
	return worker.DefaultRetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    interval,
			MaxInterval: maxDelay,
		},
	}
}

// ToExecutionMessage maps an entry credit job request to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message back into the core contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// EnqueuerAdapter lets the core service request outbox dispatch on a go-job
// queue.
type EnqueuerAdapter struct {
	enqueuer  queue.Enqueuer
	onEnqueue func(queue.EnqueueReceipt)
}

type EnqueuerOption func(*EnqueuerAdapter)

// WithReceiptObserver is called with the queue receipt of every accepted job.
func WithReceiptObserver(fn func(queue.EnqueueReceipt)) EnqueuerOption {
	return func(a *EnqueuerAdapter) {
		a.onEnqueue = fn
	}
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer, opts ...EnqueuerOption) *EnqueuerAdapter {
	adapter := &EnqueuerAdapter{enqueuer: enqueuer}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	receipt, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	if err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	if a.onEnqueue != nil {
		a.onEnqueue(receipt)
	}
	return nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
