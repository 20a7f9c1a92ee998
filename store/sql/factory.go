package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL-backed store from one bun connection.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	unitOfWork       *UnitOfWork
	outboxStore      *OutboxStore
	competitionStore *CompetitionStore
}

type FactoryOption func(*RepositoryFactory)

// WithCacheService enables the cached competition catalog.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.unitOfWork != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) UnitOfWork() *UnitOfWork {
	if f == nil {
		return nil
	}
	return f.unitOfWork
}

func (f *RepositoryFactory) OutboxStore() *OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

func (f *RepositoryFactory) CompetitionStore() *CompetitionStore {
	if f == nil {
		return nil
	}
	return f.competitionStore
}

func (f *RepositoryFactory) initStores() error {
	uowOpts := []UnitOfWorkOption{}
	if f.cache != nil {
		uowOpts = append(uowOpts, WithCompetitionCache(f.cache))
	}
	unitOfWork, err := NewUnitOfWork(f.db, uowOpts...)
	if err != nil {
		return err
	}
	outboxStore, err := NewOutboxStore(f.db)
	if err != nil {
		return err
	}
	competitionStore, err := NewCompetitionStore(f.db, f.cache)
	if err != nil {
		return err
	}
	f.unitOfWork = unitOfWork
	f.outboxStore = outboxStore
	f.competitionStore = competitionStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
