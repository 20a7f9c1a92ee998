package sqlstore

import "github.com/goliatone/go-entry-credits/core"

var (
	_ core.UnitOfWork         = (*UnitOfWork)(nil)
	_ core.Stores             = (*txStores)(nil)
	_ core.EntrantDirectory   = (*EntrantStore)(nil)
	_ core.EntrantLocker      = (*EntrantStore)(nil)
	_ core.CompetitionCatalog = txCompetitionCatalog{}
	_ core.CompetitionCatalog = (*CachedCompetitionCatalog)(nil)
	_ core.EntryCreditStore   = (*EntryCreditStore)(nil)
	_ core.PendingOrderStore  = (*PendingOrderStore)(nil)
	_ core.OrderClaimStore    = (*OrderClaimStore)(nil)
	_ core.EventEnqueuer      = txOutbox{}
	_ core.OutboxStore        = (*OutboxStore)(nil)
)
