package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entry-credits/core"
)

var (
	_ gocmd.Querier[ListPendingOrdersMessage, []core.PendingOrder] = (*ListPendingOrdersQuery)(nil)
	_ gocmd.Querier[GetPendingOrderMessage, core.PendingOrder]     = (*GetPendingOrderQuery)(nil)
	_ gocmd.Querier[CreditsByEntrantMessage, []core.EntryCredit]   = (*CreditsByEntrantQuery)(nil)

	_ PendingOrderReader = (*core.Service)(nil)
	_ CreditReader       = (*core.Service)(nil)
)
