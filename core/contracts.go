package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// EntrantDirectory finds or creates entrants keyed by normalized email.
type EntrantDirectory interface {
	FindByEmail(ctx context.Context, email string) (Entrant, bool, error)
	Create(ctx context.Context, in CreateEntrantInput) (Entrant, error)
	Get(ctx context.Context, id string) (Entrant, error)
}

// EntrantLocker serializes concurrent units of work that touch the same
// entrant. The lock is held until the surrounding transaction ends.
type EntrantLocker interface {
	LockEntrant(ctx context.Context, entrantID string) error
}

type CompetitionCatalog interface {
	GetCompetition(ctx context.Context, id string) (Competition, error)
}

type EntryCreditStore interface {
	Create(ctx context.Context, in IssueCreditInput) (EntryCredit, error)
	FindByExternalOrder(ctx context.Context, key OrderKey) (EntryCredit, bool, error)
	ListByEntrant(ctx context.Context, entrantID string) ([]EntryCredit, error)
	CompetitionIDsForEntrant(ctx context.Context, entrantID string) ([]string, error)
}

type PendingOrderStore interface {
	Create(ctx context.Context, in CreatePendingOrderInput) (PendingOrder, error)
	FindByExternalOrder(ctx context.Context, key OrderKey) (PendingOrder, bool, error)
	Get(ctx context.Context, id string) (PendingOrder, error)
	List(ctx context.Context, filter PendingOrderFilter) ([]PendingOrder, error)
	// Transition moves a NEEDS_REVIEW order into a terminal status. It returns
	// ErrPendingOrderNotReviewable when the order already left NEEDS_REVIEW.
	Transition(
		ctx context.Context,
		id string,
		to PendingOrderStatus,
		actor string,
		notes string,
		at time.Time,
	) (PendingOrder, error)
}

type OrderClaimStore interface {
	// Claim records the order key. It returns ErrDuplicateOrder when the key
	// was already claimed.
	Claim(ctx context.Context, claim OrderClaim) error
	Get(ctx context.Context, key OrderKey) (OrderClaim, bool, error)
}

type EventEnqueuer interface {
	Enqueue(ctx context.Context, event Event) error
}

type OutboxStore interface {
	EventEnqueuer
	ClaimBatch(ctx context.Context, limit int) ([]Event, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

// Stores is the set of stores bound to one open unit of work.
type Stores interface {
	Entrants() EntrantDirectory
	Locker() EntrantLocker
	Catalog() CompetitionCatalog
	Credits() EntryCreditStore
	PendingOrders() PendingOrderStore
	Claims() OrderClaimStore
	Outbox() EventEnqueuer
}

// UnitOfWork runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

type EventHandlerFunc func(ctx context.Context, event Event) error

func (fn EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

type ProjectorRegistry interface {
	Register(name string, handler EventHandler)
	Handlers() []EventHandler
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type OutboxDispatcherRunner interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

