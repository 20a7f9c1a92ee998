package command

import (
	"strings"

	"github.com/goliatone/go-entry-credits/core"
)

const (
	TypeIngestOrder         = "entry_credits.command.order.ingest"
	TypeResolvePendingOrder = "entry_credits.command.pending_order.resolve"
	TypeCancelPendingOrder  = "entry_credits.command.pending_order.cancel"
	TypeDispatchOutbox      = "entry_credits.command.outbox.dispatch"
)

type IngestOrderMessage struct {
	Order core.OrderNotification
}

func (IngestOrderMessage) Type() string { return TypeIngestOrder }

func (m IngestOrderMessage) Validate() error {
	if m.Order.Key().IsZero() {
		return commandValidationError("externalOrderId", "external order id and source are required")
	}
	if strings.TrimSpace(m.Order.CompetitionID) == "" {
		return commandValidationError("competitionId", "competition id is required")
	}
	if m.Order.Quantity <= 0 {
		return commandValidationError("quantity", "quantity must be greater than zero")
	}
	if core.NormalizeEmail(m.Order.Customer.Email) == "" {
		return commandValidationError("customer.email", "customer email is required")
	}
	return nil
}

// ReviewMessage carries a reviewer decision on a pending order.
type ReviewMessage struct {
	PendingOrderID string
	Actor          string
	Notes          string
}

func (m ReviewMessage) decision() core.ReviewDecision {
	return core.ReviewDecision{
		PendingOrderID: strings.TrimSpace(m.PendingOrderID),
		Actor:          strings.TrimSpace(m.Actor),
		Notes:          strings.TrimSpace(m.Notes),
	}
}

func (m ReviewMessage) validate() error {
	if strings.TrimSpace(m.PendingOrderID) == "" {
		return commandValidationError("pendingOrderId", "pending order id is required")
	}
	if strings.TrimSpace(m.Actor) == "" {
		return commandValidationError("actor", "reviewer is required")
	}
	return nil
}

type ResolvePendingOrderMessage struct {
	ReviewMessage
}

func (ResolvePendingOrderMessage) Type() string { return TypeResolvePendingOrder }

func (m ResolvePendingOrderMessage) Validate() error { return m.validate() }

type CancelPendingOrderMessage struct {
	ReviewMessage
}

func (CancelPendingOrderMessage) Type() string { return TypeCancelPendingOrder }

func (m CancelPendingOrderMessage) Validate() error { return m.validate() }

type DispatchOutboxMessage struct {
	BatchSize int
}

func (DispatchOutboxMessage) Type() string { return TypeDispatchOutbox }

func (m DispatchOutboxMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batchSize", "batch size must not be negative")
	}
	return nil
}
