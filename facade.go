package entrycredits

import (
	"fmt"

	creditscommand "github.com/goliatone/go-entry-credits/command"
	"github.com/goliatone/go-entry-credits/core"
	creditsquery "github.com/goliatone/go-entry-credits/query"
)

// CommandQueryService is the service surface wrapped by the facade.
type CommandQueryService interface {
	creditscommand.MutatingService
	creditsquery.PendingOrderReader
	creditsquery.CreditReader
}

type Commands struct {
	IngestOrder         *creditscommand.IngestOrderCommand
	ResolvePendingOrder *creditscommand.ResolvePendingOrderCommand
	CancelPendingOrder  *creditscommand.CancelPendingOrderCommand
	DispatchOutbox      *creditscommand.DispatchOutboxCommand
}

type Queries struct {
	ListPendingOrders *creditsquery.ListPendingOrdersQuery
	GetPendingOrder   *creditsquery.GetPendingOrderQuery
	CreditsByEntrant  *creditsquery.CreditsByEntrantQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	dispatcher core.OutboxDispatcherRunner
}

// WithOutboxDispatcher exposes outbox dispatch as a command.
func WithOutboxDispatcher(dispatcher core.OutboxDispatcherRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.dispatcher = dispatcher
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("entrycredits: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestOrder:         creditscommand.NewIngestOrderCommand(service),
		ResolvePendingOrder: creditscommand.NewResolvePendingOrderCommand(service),
		CancelPendingOrder:  creditscommand.NewCancelPendingOrderCommand(service),
	}
	if cfg.dispatcher != nil {
		facade.commands.DispatchOutbox = creditscommand.NewDispatchOutboxCommand(cfg.dispatcher)
	}
	facade.queries = Queries{
		ListPendingOrders: creditsquery.NewListPendingOrdersQuery(service),
		GetPendingOrder:   creditsquery.NewGetPendingOrderQuery(service),
		CreditsByEntrant:  creditsquery.NewCreditsByEntrantQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
