package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entry-credits/core"
)

var (
	_ gocmd.Commander[IngestOrderMessage]         = (*IngestOrderCommand)(nil)
	_ gocmd.Commander[ResolvePendingOrderMessage] = (*ResolvePendingOrderCommand)(nil)
	_ gocmd.Commander[CancelPendingOrderMessage]  = (*CancelPendingOrderCommand)(nil)
	_ gocmd.Commander[DispatchOutboxMessage]      = (*DispatchOutboxCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
