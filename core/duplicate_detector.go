package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DuplicateCheck is the result of looking an order key up in every place a
// processed order can leave a trace.
type DuplicateCheck struct {
	Found     bool
	EntrantID string
	Source    string
}

// DuplicateDetector recognizes redeliveries of an order that already produced
// a credit, a pending order or a claim.
type DuplicateDetector struct {
	credits       EntryCreditStore
	pendingOrders PendingOrderStore
	claims        OrderClaimStore
	now           func() time.Time
}

func NewDuplicateDetector(credits EntryCreditStore, pendingOrders PendingOrderStore, claims OrderClaimStore) *DuplicateDetector {
	return &DuplicateDetector{
		credits:       credits,
		pendingOrders: pendingOrders,
		claims:        claims,
		now:           utcNow,
	}
}

// Check never writes.
func (d *DuplicateDetector) Check(ctx context.Context, key OrderKey) (DuplicateCheck, error) {
	if d == nil || d.credits == nil || d.pendingOrders == nil {
		return DuplicateCheck{}, fmt.Errorf("core: duplicate detector is not configured")
	}
	if key.IsZero() {
		return DuplicateCheck{}, fmt.Errorf("core: order key is required")
	}

	credit, found, err := d.credits.FindByExternalOrder(ctx, key)
	if err != nil {
		return DuplicateCheck{}, err
	}
	if found {
		return DuplicateCheck{Found: true, EntrantID: credit.EntrantID, Source: "entry_credit"}, nil
	}

	pending, found, err := d.pendingOrders.FindByExternalOrder(ctx, key)
	if err != nil {
		return DuplicateCheck{}, err
	}
	if found {
		return DuplicateCheck{Found: true, EntrantID: pending.EntrantID, Source: "pending_order"}, nil
	}

	if d.claims != nil {
		claim, found, err := d.claims.Get(ctx, key)
		if err != nil {
			return DuplicateCheck{}, err
		}
		if found {
			return DuplicateCheck{Found: true, EntrantID: claim.EntrantID, Source: "order_claim"}, nil
		}
	}
	return DuplicateCheck{}, nil
}

// Claim records the terminal outcome for key. A second claim for the same key
// fails with ErrDuplicateOrder.
func (d *DuplicateDetector) Claim(ctx context.Context, key OrderKey, outcome ClaimOutcome, entrantID string) error {
	if d == nil || d.claims == nil {
		return fmt.Errorf("core: order claim store is required")
	}
	return d.claims.Claim(ctx, OrderClaim{
		Key:       key,
		Outcome:   outcome,
		EntrantID: strings.TrimSpace(entrantID),
		CreatedAt: d.now(),
	})
}
