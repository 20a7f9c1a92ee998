package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReviewQueue holds orders that were accepted but could not be credited
// automatically.
type ReviewQueue struct {
	pendingOrders PendingOrderStore
	outbox        EventEnqueuer
	now           func() time.Time
}

func NewReviewQueue(pendingOrders PendingOrderStore, outbox EventEnqueuer) *ReviewQueue {
	return &ReviewQueue{
		pendingOrders: pendingOrders,
		outbox:        outbox,
		now:           utcNow,
	}
}

func (q *ReviewQueue) Enqueue(ctx context.Context, order OrderNotification, entrant Entrant, reason ReviewReason) (PendingOrder, error) {
	if q == nil || q.pendingOrders == nil {
		return PendingOrder{}, fmt.Errorf("core: review queue is not configured")
	}
	pending, err := q.pendingOrders.Create(ctx, CreatePendingOrderInput{
		Key:           order.Key(),
		CompetitionID: order.CompetitionID,
		EntrantID:     entrant.ID,
		RawPayload:    order.RawPayload,
		Reason:        reason,
	})
	if err != nil {
		return PendingOrder{}, err
	}
	if q.outbox != nil {
		if err := q.outbox.Enqueue(ctx, pendingOrderCreatedEvent(pending, entrant.Email, order.Quantity)); err != nil {
			return PendingOrder{}, err
		}
	}
	return pending, nil
}

func (q *ReviewQueue) Resolve(ctx context.Context, decision ReviewDecision) (PendingOrder, error) {
	return q.decide(ctx, decision, PendingOrderStatusResolved)
}

func (q *ReviewQueue) Cancel(ctx context.Context, decision ReviewDecision) (PendingOrder, error) {
	return q.decide(ctx, decision, PendingOrderStatusCancelled)
}

func (q *ReviewQueue) decide(ctx context.Context, decision ReviewDecision, to PendingOrderStatus) (PendingOrder, error) {
	if q == nil || q.pendingOrders == nil {
		return PendingOrder{}, fmt.Errorf("core: review queue is not configured")
	}
	id := strings.TrimSpace(decision.PendingOrderID)
	if id == "" {
		return PendingOrder{}, fmt.Errorf("core: pending order id is required")
	}
	actor := strings.TrimSpace(decision.Actor)
	if actor == "" {
		return PendingOrder{}, fmt.Errorf("core: reviewer is required")
	}

	current, err := q.pendingOrders.Get(ctx, id)
	if err != nil {
		return PendingOrder{}, err
	}
	if current.Status != PendingOrderStatusNeedsReview {
		return PendingOrder{}, fmt.Errorf("%w: %s is %s", ErrPendingOrderNotReviewable, id, current.Status)
	}

	updated, err := q.pendingOrders.Transition(ctx, id, to, actor, strings.TrimSpace(decision.Notes), q.now())
	if err != nil {
		return PendingOrder{}, err
	}
	if q.outbox != nil {
		if err := q.outbox.Enqueue(ctx, pendingOrderDecidedEvent(updated)); err != nil {
			return PendingOrder{}, err
		}
	}
	return updated, nil
}

func (q *ReviewQueue) ListNeedingReview(ctx context.Context) ([]PendingOrder, error) {
	return q.List(ctx, PendingOrderFilter{Status: PendingOrderStatusNeedsReview})
}

func (q *ReviewQueue) ListAll(ctx context.Context) ([]PendingOrder, error) {
	return q.List(ctx, PendingOrderFilter{})
}

func (q *ReviewQueue) List(ctx context.Context, filter PendingOrderFilter) ([]PendingOrder, error) {
	if q == nil || q.pendingOrders == nil {
		return nil, fmt.Errorf("core: review queue is not configured")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("core: invalid pending order status %q", filter.Status)
	}
	return q.pendingOrders.List(ctx, filter)
}

func (q *ReviewQueue) Get(ctx context.Context, id string) (PendingOrder, error) {
	if q == nil || q.pendingOrders == nil {
		return PendingOrder{}, fmt.Errorf("core: review queue is not configured")
	}
	return q.pendingOrders.Get(ctx, strings.TrimSpace(id))
}
