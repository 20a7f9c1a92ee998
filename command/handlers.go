package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entry-credits/core"
)

type IngestService interface {
	Ingest(ctx context.Context, order core.OrderNotification) (core.IngestResult, error)
}

type ReviewService interface {
	ResolvePendingOrder(ctx context.Context, decision core.ReviewDecision) (core.PendingOrder, error)
	CancelPendingOrder(ctx context.Context, decision core.ReviewDecision) (core.PendingOrder, error)
}

// MutatingService is the write side exposed through commands.
type MutatingService interface {
	IngestService
	ReviewService
}

type IngestOrderCommand struct {
	service IngestService
}

func NewIngestOrderCommand(service IngestService) *IngestOrderCommand {
	return &IngestOrderCommand{service: service}
}

func (c *IngestOrderCommand) Execute(ctx context.Context, msg IngestOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	out, err := c.service.Ingest(ctx, msg.Order)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolvePendingOrderCommand struct {
	service ReviewService
}

func NewResolvePendingOrderCommand(service ReviewService) *ResolvePendingOrderCommand {
	return &ResolvePendingOrderCommand{service: service}
}

func (c *ResolvePendingOrderCommand) Execute(ctx context.Context, msg ResolvePendingOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: review service is required")
	}
	out, err := c.service.ResolvePendingOrder(ctx, msg.decision())
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelPendingOrderCommand struct {
	service ReviewService
}

func NewCancelPendingOrderCommand(service ReviewService) *CancelPendingOrderCommand {
	return &CancelPendingOrderCommand{service: service}
}

func (c *CancelPendingOrderCommand) Execute(ctx context.Context, msg CancelPendingOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: review service is required")
	}
	out, err := c.service.CancelPendingOrder(ctx, msg.decision())
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchOutboxCommand struct {
	runner core.OutboxDispatcherRunner
}

func NewDispatchOutboxCommand(runner core.OutboxDispatcherRunner) *DispatchOutboxCommand {
	return &DispatchOutboxCommand{runner: runner}
}

// Execute stores the dispatch stats even when some deliveries failed.
func (c *DispatchOutboxCommand) Execute(ctx context.Context, msg DispatchOutboxMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: outbox dispatcher is required")
	}
	stats, err := c.runner.DispatchPending(ctx, msg.BatchSize)
	storeResult(ctx, stats)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
