package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type OutboxDispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// OutboxDispatcherConfigFrom fills the dispatcher settings exposed through
// Config and keeps the default backoff curve.
func OutboxDispatcherConfigFrom(cfg OutboxConfig) OutboxDispatcherConfig {
	out := DefaultOutboxDispatcherConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	return out
}

func (c OutboxDispatcherConfig) normalized() OutboxDispatcherConfig {
	defaults := DefaultOutboxDispatcherConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	return c
}

// OutboxDispatcher delivers committed outbox events to every registered
// projector. Delivery is at least once; a failing event is retried with
// exponential backoff until MaxAttempts and then parked as failed.
type OutboxDispatcher struct {
	store    OutboxStore
	registry ProjectorRegistry
	config   OutboxDispatcherConfig
	logger   Logger
	now      func() time.Time
}

type OutboxDispatcherOption func(*OutboxDispatcher)

func WithDispatcherLogger(logger Logger) OutboxDispatcherOption {
	return func(d *OutboxDispatcher) {
		d.logger = logger
	}
}

func WithDispatcherClock(clock func() time.Time) OutboxDispatcherOption {
	return func(d *OutboxDispatcher) {
		if clock != nil {
			d.now = clock
		}
	}
}

func NewOutboxDispatcher(
	store OutboxStore,
	registry ProjectorRegistry,
	config OutboxDispatcherConfig,
	options ...OutboxDispatcherOption,
) (*OutboxDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	dispatcher := &OutboxDispatcher{
		store:    store,
		registry: registry,
		config:   config.normalized(),
		now:      utcNow,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	return dispatcher, nil
}

func (d *OutboxDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.store == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox dispatcher is not configured")
	}
	if batchSize <= 0 {
		batchSize = d.config.BatchSize
	}
	events, err := d.store.ClaimBatch(ctx, batchSize)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(events)}
	var dispatchErr error
	for _, event := range events {
		eventID := strings.TrimSpace(event.ID)
		deliverErr := d.deliver(ctx, event)
		if deliverErr == nil {
			if err := d.store.Ack(ctx, eventID); err != nil {
				dispatchErr = joinErrors(dispatchErr, err)
				continue
			}
			stats.Delivered++
			continue
		}

		exhausted, retryErr := d.reschedule(ctx, event, deliverErr)
		if exhausted {
			stats.Failed++
		} else {
			stats.Retried++
		}
		dispatchErr = joinErrors(dispatchErr, deliverErr)
		dispatchErr = joinErrors(dispatchErr, retryErr)
	}

	if stats.Claimed > 0 {
		logWithLevel(ctx, d.logger, "debug", "outbox batch dispatched", map[string]any{
			"claimed":   stats.Claimed,
			"delivered": stats.Delivered,
			"retried":   stats.Retried,
			"failed":    stats.Failed,
		})
	}
	return stats, dispatchErr
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event Event) error {
	if d.registry == nil {
		return nil
	}
	for index, handler := range d.registry.Handlers() {
		if handler == nil {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("core: outbox projector %d failed for %s event %q: %w", index, event.Name, event.ID, err)
		}
	}
	return nil
}

// reschedule records a failed delivery. A zero next attempt time parks the
// event as failed.
func (d *OutboxDispatcher) reschedule(ctx context.Context, event Event, cause error) (bool, error) {
	attempt := outboxAttempts(event) + 1
	exhausted := attempt >= d.config.MaxAttempts

	var nextAttemptAt time.Time
	if !exhausted {
		nextAttemptAt = d.now().Add(d.backoff(attempt))
	}
	level := "warn"
	if exhausted {
		level = "error"
	}
	logWithLevel(ctx, d.logger, level, "outbox delivery failed", map[string]any{
		"event_id":   event.ID,
		"event_name": event.Name,
		"attempt":    attempt,
		"exhausted":  exhausted,
		"error":      cause.Error(),
	})
	return exhausted, d.store.Retry(ctx, strings.TrimSpace(event.ID), cause, nextAttemptAt)
}

func (d *OutboxDispatcher) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.config.InitialBackoff
	for step := 1; step < attempt; step++ {
		delay *= 2
		if delay <= 0 || delay >= d.config.MaxBackoff {
			return d.config.MaxBackoff
		}
	}
	if delay > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return delay
}

// outboxAttempts reads the failed delivery count the store attaches to a
// claimed event.
func outboxAttempts(event Event) int {
	raw, ok := event.Metadata[MetadataKeyOutboxAttempts]
	if !ok {
		return 0
	}
	attempts := 0
	switch typed := raw.(type) {
	case int:
		attempts = typed
	case int64:
		attempts = int(typed)
	case float64:
		attempts = int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			attempts = parsed
		}
	}
	if attempts < 0 {
		return 0
	}
	return attempts
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ OutboxDispatcherRunner = (*OutboxDispatcher)(nil)
