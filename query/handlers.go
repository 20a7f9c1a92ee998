package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-entry-credits/core"
)

type PendingOrderReader interface {
	ListPendingOrders(ctx context.Context, filter core.PendingOrderFilter) ([]core.PendingOrder, error)
	GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error)
}

type CreditReader interface {
	CreditsByEntrant(ctx context.Context, entrantID string) ([]core.EntryCredit, error)
}

type ListPendingOrdersQuery struct {
	reader PendingOrderReader
}

func NewListPendingOrdersQuery(reader PendingOrderReader) *ListPendingOrdersQuery {
	return &ListPendingOrdersQuery{reader: reader}
}

func (q *ListPendingOrdersQuery) Query(ctx context.Context, msg ListPendingOrdersMessage) ([]core.PendingOrder, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pending order reader is required")
	}
	return q.reader.ListPendingOrders(ctx, core.PendingOrderFilter{Status: msg.Status})
}

type GetPendingOrderQuery struct {
	reader PendingOrderReader
}

func NewGetPendingOrderQuery(reader PendingOrderReader) *GetPendingOrderQuery {
	return &GetPendingOrderQuery{reader: reader}
}

func (q *GetPendingOrderQuery) Query(ctx context.Context, msg GetPendingOrderMessage) (core.PendingOrder, error) {
	if q == nil || q.reader == nil {
		return core.PendingOrder{}, queryDependencyError("query: pending order reader is required")
	}
	return q.reader.GetPendingOrder(ctx, strings.TrimSpace(msg.PendingOrderID))
}

type CreditsByEntrantQuery struct {
	reader CreditReader
}

func NewCreditsByEntrantQuery(reader CreditReader) *CreditsByEntrantQuery {
	return &CreditsByEntrantQuery{reader: reader}
}

func (q *CreditsByEntrantQuery) Query(ctx context.Context, msg CreditsByEntrantMessage) ([]core.EntryCredit, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: credit reader is required")
	}
	return q.reader.CreditsByEntrant(ctx, strings.TrimSpace(msg.EntrantID))
}
