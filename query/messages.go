package query

import (
	"strings"

	"github.com/goliatone/go-entry-credits/core"
)

const (
	TypeListPendingOrders = "entry_credits.query.pending_order.list"
	TypeGetPendingOrder   = "entry_credits.query.pending_order.get"
	TypeCreditsByEntrant  = "entry_credits.query.credits.by_entrant"
)

type ListPendingOrdersMessage struct {
	Status core.PendingOrderStatus
}

func (ListPendingOrdersMessage) Type() string { return TypeListPendingOrders }

func (m ListPendingOrdersMessage) Validate() error {
	if m.Status != "" && !m.Status.Valid() {
		return queryValidationError("status", "unknown pending order status")
	}
	return nil
}

type GetPendingOrderMessage struct {
	PendingOrderID string
}

func (GetPendingOrderMessage) Type() string { return TypeGetPendingOrder }

func (m GetPendingOrderMessage) Validate() error {
	if strings.TrimSpace(m.PendingOrderID) == "" {
		return queryValidationError("pendingOrderId", "pending order id is required")
	}
	return nil
}

type CreditsByEntrantMessage struct {
	EntrantID string
}

func (CreditsByEntrantMessage) Type() string { return TypeCreditsByEntrant }

func (m CreditsByEntrantMessage) Validate() error {
	if strings.TrimSpace(m.EntrantID) == "" {
		return queryValidationError("entrantId", "entrant id is required")
	}
	return nil
}
