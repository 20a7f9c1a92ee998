package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// UnitOfWork opens one database transaction per ingestion or review and
// hands out stores bound to it.
type UnitOfWork struct {
	db        *bun.DB
	cache     repositorycache.CacheService
	txOptions *sql.TxOptions
	now       func() time.Time

	entrants      repository.Repository[*entrantRecord]
	credits       repository.Repository[*entryCreditRecord]
	pendingOrders repository.Repository[*pendingOrderRecord]
	outbox        repository.Repository[*outboxRecord]
}

type UnitOfWorkOption func(*UnitOfWork)

// WithCompetitionCache serves competition lookups through cacheService.
func WithCompetitionCache(cacheService repositorycache.CacheService) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		u.cache = cacheService
	}
}

func WithTxOptions(opts *sql.TxOptions) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		u.txOptions = opts
	}
}

func NewUnitOfWork(db *bun.DB, opts ...UnitOfWorkOption) (*UnitOfWork, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	uow := &UnitOfWork{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uow)
		}
	}

	uow.entrants = repository.NewRepository[*entrantRecord](db, entrantHandlers())
	uow.credits = repository.NewRepository[*entryCreditRecord](db, entryCreditHandlers())
	uow.pendingOrders = repository.NewRepository[*pendingOrderRecord](db, pendingOrderHandlers())
	uow.outbox = repository.NewRepository[*outboxRecord](db, outboxHandlers())
	for label, repo := range map[string]any{
		"entrant":       uow.entrants,
		"entry credit":  uow.credits,
		"pending order": uow.pendingOrders,
		"outbox":        uow.outbox,
	} {
		if validator, ok := repo.(repository.Validator); ok {
			if err := validator.Validate(); err != nil {
				return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", label, err)
			}
		}
	}
	return uow, nil
}

// RunInTx commits when fn returns nil. Lock and serialization failures come
// back wrapped in core.ErrTransient so the caller can retry the whole unit.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, stores core.Stores) error) error {
	if u == nil || u.db == nil {
		return fmt.Errorf("sqlstore: unit of work is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: unit of work function is required")
	}
	err := u.db.RunInTx(ctx, u.txOptions, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, u.bind(tx))
	})
	return classifyTxError(err)
}

func (u *UnitOfWork) bind(tx bun.Tx) *txStores {
	stores := &txStores{
		entrants:      &EntrantStore{tx: tx, repo: u.entrants, now: u.now},
		credits:       &EntryCreditStore{tx: tx, repo: u.credits, now: u.now},
		pendingOrders: &PendingOrderStore{tx: tx, repo: u.pendingOrders, now: u.now},
		claims:        &OrderClaimStore{tx: tx, now: u.now},
		outbox:        txOutbox{tx: tx, repo: u.outbox, now: u.now},
	}
	var catalog core.CompetitionCatalog = txCompetitionCatalog{tx: tx}
	if u.cache != nil {
		if cached, err := NewCachedCompetitionCatalog(catalog, u.cache); err == nil {
			catalog = cached
		}
	}
	stores.catalog = catalog
	return stores
}

type txStores struct {
	entrants      *EntrantStore
	catalog       core.CompetitionCatalog
	credits       *EntryCreditStore
	pendingOrders *PendingOrderStore
	claims        *OrderClaimStore
	outbox        txOutbox
}

func (s *txStores) Entrants() core.EntrantDirectory       { return s.entrants }
func (s *txStores) Locker() core.EntrantLocker            { return s.entrants }
func (s *txStores) Catalog() core.CompetitionCatalog      { return s.catalog }
func (s *txStores) Credits() core.EntryCreditStore        { return s.credits }
func (s *txStores) PendingOrders() core.PendingOrderStore { return s.pendingOrders }
func (s *txStores) Claims() core.OrderClaimStore          { return s.claims }
func (s *txStores) Outbox() core.EventEnqueuer            { return s.outbox }
