// Package entrycredits turns paid order notifications into entry credits.
// The root package re-exports the service constructor and options from core
// and wires the command/query facade.
package entrycredits

import (
	"github.com/goliatone/go-entry-credits/core"
)

type (
	Config              = core.Config
	Option              = core.Option
	Service             = core.Service
	ServiceDependencies = core.ServiceDependencies
	UnitOfWork          = core.UnitOfWork
	OrderNotification   = core.OrderNotification
	IngestResult        = core.IngestResult
	PendingOrder        = core.PendingOrder
	EntryCredit         = core.EntryCredit
	ReviewDecision      = core.ReviewDecision
	Event               = core.Event
	EventHandler        = core.EventHandler
)

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewMemoryStore() *core.MemoryStore {
	return core.NewMemoryStore()
}

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithUnitOfWork      = core.WithUnitOfWork
	WithJobEnqueuer     = core.WithJobEnqueuer
)
