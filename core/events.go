package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventEntryCreditAdded       = "entry_credit.added"
	EventPendingOrderCreated    = "pending_order.created"
	EventPendingOrderResolved   = "pending_order.resolved"
	EventPendingOrderCancelled  = "pending_order.cancelled"
	AggregateTypeEntryCredit    = "entry_credit"
	AggregateTypePendingOrder   = "pending_order"
	MetadataKeyOutboxAttempts   = "_outbox_attempts"
	MetadataKeyExternalSource   = "external_source"
	MetadataKeyExternalOrderID  = "external_order_id"
	metadataKeyPendingOrderFrom = "previous_status"
)

// Event is a notification written to the outbox in the same transaction as
// the state change it describes.
type Event struct {
	ID            string
	Name          string
	AggregateType string
	AggregateID   string
	Payload       map[string]any
	Metadata      map[string]any
	OccurredAt    time.Time
}

func newEvent(name, aggregateType, aggregateID string, key OrderKey, at time.Time) Event {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		AggregateType: aggregateType,
		AggregateID:   strings.TrimSpace(aggregateID),
		Payload:       map[string]any{},
		Metadata: map[string]any{
			MetadataKeyExternalSource:  key.ExternalSource,
			MetadataKeyExternalOrderID: key.ExternalOrderID,
		},
		OccurredAt: at.UTC(),
	}
}

func entryCreditAddedEvent(entrant Entrant, credit EntryCredit) Event {
	event := newEvent(EventEntryCreditAdded, AggregateTypeEntryCredit, credit.ID, credit.Key(), credit.CreatedAt)
	event.Payload = map[string]any{
		"entrant_id":     entrant.ID,
		"credit_id":      credit.ID,
		"competition_id": credit.CompetitionID,
		"quantity":       credit.Quantity,
		"entrant_email":  entrant.Email,
		"entrant_name":   entrant.Name,
		"entrant_phone":  entrant.Phone,
	}
	return event
}

func pendingOrderCreatedEvent(order PendingOrder, entrantEmail string, quantity int) Event {
	event := newEvent(EventPendingOrderCreated, AggregateTypePendingOrder, order.ID, order.Key(), order.CreatedAt)
	event.Payload = map[string]any{
		"pending_order_id": order.ID,
		"entrant_id":       order.EntrantID,
		"entrant_email":    entrantEmail,
		"competition_id":   order.CompetitionID,
		"quantity":         quantity,
		"reason":           string(order.Reason),
		"explanation":      order.Explanation(),
	}
	return event
}

func pendingOrderDecidedEvent(order PendingOrder) Event {
	name := EventPendingOrderResolved
	if order.Status == PendingOrderStatusCancelled {
		name = EventPendingOrderCancelled
	}
	at := time.Now().UTC()
	if order.ResolvedAt != nil {
		at = *order.ResolvedAt
	}
	event := newEvent(name, AggregateTypePendingOrder, order.ID, order.Key(), at)
	event.Payload = map[string]any{
		"pending_order_id": order.ID,
		"entrant_id":       order.EntrantID,
		"status":           string(order.Status),
		"resolved_by":      order.ResolvedBy,
		"resolution_notes": order.ResolutionNotes,
	}
	event.Metadata[metadataKeyPendingOrderFrom] = string(PendingOrderStatusNeedsReview)
	return event
}
