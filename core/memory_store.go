package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps every record in process memory. Units of work are
// serialized by a single mutex and operate on a copy of the state that only
// replaces the live state on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

type memoryOutboxRecord struct {
	event         Event
	status        string
	attempts      int
	nextAttemptAt time.Time
	lastError     string
}

type memoryState struct {
	entrants        map[string]Entrant
	entrantsByEmail map[string]string
	lockVersions    map[string]int
	competitions    map[string]Competition
	credits         []EntryCredit
	pendingOrders   map[string]PendingOrder
	pendingOrderIDs []string
	claims          map[OrderKey]OrderClaim
	outbox          []memoryOutboxRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   utcNow,
	}
}

func newMemoryState() *memoryState {
	return &memoryState{
		entrants:        map[string]Entrant{},
		entrantsByEmail: map[string]string{},
		lockVersions:    map[string]int{},
		competitions:    map[string]Competition{},
		pendingOrders:   map[string]PendingOrder{},
		claims:          map[OrderKey]OrderClaim{},
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for id, entrant := range s.entrants {
		out.entrants[id] = entrant
	}
	for email, id := range s.entrantsByEmail {
		out.entrantsByEmail[email] = id
	}
	for id, version := range s.lockVersions {
		out.lockVersions[id] = version
	}
	for id, competition := range s.competitions {
		out.competitions[id] = competition
	}
	out.credits = append([]EntryCredit(nil), s.credits...)
	for id, order := range s.pendingOrders {
		order.RawPayload = append([]byte(nil), order.RawPayload...)
		out.pendingOrders[id] = order
	}
	out.pendingOrderIDs = append([]string(nil), s.pendingOrderIDs...)
	for key, claim := range s.claims {
		out.claims[key] = claim
	}
	out.outbox = append([]memoryOutboxRecord(nil), s.outbox...)
	return out
}

// PutCompetition seeds the read-only competition catalog.
func (m *MemoryStore) PutCompetition(competition Competition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	competition.ID = strings.ToLower(strings.TrimSpace(competition.ID))
	m.state.competitions[competition.ID] = competition
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if fn == nil {
		return fmt.Errorf("core: unit of work function is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(ctx, &memoryStores{state: working, now: m.now}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// Outbox exposes the dispatcher side of the outbox.
func (m *MemoryStore) Outbox() OutboxStore {
	return &memoryOutbox{store: m}
}

type memoryStores struct {
	state *memoryState
	now   func() time.Time
}

func (s *memoryStores) Entrants() EntrantDirectory       { return memoryEntrants{s} }
func (s *memoryStores) Locker() EntrantLocker            { return memoryEntrants{s} }
func (s *memoryStores) Catalog() CompetitionCatalog      { return memoryCatalog{s} }
func (s *memoryStores) Credits() EntryCreditStore        { return memoryCredits{s} }
func (s *memoryStores) PendingOrders() PendingOrderStore { return memoryPendingOrders{s} }
func (s *memoryStores) Claims() OrderClaimStore          { return memoryClaims{s} }
func (s *memoryStores) Outbox() EventEnqueuer            { return memoryEnqueuer{s} }

type memoryEntrants struct{ *memoryStores }

func (s memoryEntrants) FindByEmail(_ context.Context, email string) (Entrant, bool, error) {
	id, ok := s.state.entrantsByEmail[NormalizeEmail(email)]
	if !ok {
		return Entrant{}, false, nil
	}
	return s.state.entrants[id], true, nil
}

func (s memoryEntrants) Create(_ context.Context, in CreateEntrantInput) (Entrant, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return Entrant{}, fmt.Errorf("core: entrant email is required")
	}
	if _, exists := s.state.entrantsByEmail[email]; exists {
		return Entrant{}, fmt.Errorf("%w: %s", ErrEntrantEmailTaken, email)
	}
	now := s.now()
	entrant := Entrant{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.state.entrants[entrant.ID] = entrant
	s.state.entrantsByEmail[email] = entrant.ID
	return entrant, nil
}

func (s memoryEntrants) Get(_ context.Context, id string) (Entrant, error) {
	entrant, ok := s.state.entrants[strings.TrimSpace(id)]
	if !ok {
		return Entrant{}, fmt.Errorf("%w: %s", ErrEntrantNotFound, id)
	}
	return entrant, nil
}

func (s memoryEntrants) LockEntrant(_ context.Context, entrantID string) error {
	if _, ok := s.state.entrants[entrantID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntrantNotFound, entrantID)
	}
	s.state.lockVersions[entrantID]++
	return nil
}

type memoryCatalog struct{ *memoryStores }

func (s memoryCatalog) GetCompetition(_ context.Context, id string) (Competition, error) {
	competition, ok := s.state.competitions[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Competition{}, fmt.Errorf("%w: %s", ErrCompetitionNotFound, id)
	}
	return competition, nil
}

type memoryCredits struct{ *memoryStores }

func (s memoryCredits) Create(_ context.Context, in IssueCreditInput) (EntryCredit, error) {
	for _, existing := range s.state.credits {
		if existing.Key() == in.Key {
			return EntryCredit{}, fmt.Errorf("%w: %s", ErrDuplicateOrder, in.Key)
		}
	}
	credit := EntryCredit{
		ID:              uuid.NewString(),
		EntrantID:       in.Entrant.ID,
		CompetitionID:   in.CompetitionID,
		Quantity:        in.Quantity,
		UsedCount:       0,
		ExternalOrderID: in.Key.ExternalOrderID,
		ExternalSource:  in.Key.ExternalSource,
		Status:          CreditStatusActive,
		PurchasedAt:     in.PurchasedAt.UTC(),
		CreatedAt:       s.now(),
	}
	s.state.credits = append(s.state.credits, credit)
	return credit, nil
}

func (s memoryCredits) FindByExternalOrder(_ context.Context, key OrderKey) (EntryCredit, bool, error) {
	for _, credit := range s.state.credits {
		if credit.Key() == key {
			return credit, true, nil
		}
	}
	return EntryCredit{}, false, nil
}

func (s memoryCredits) ListByEntrant(_ context.Context, entrantID string) ([]EntryCredit, error) {
	out := make([]EntryCredit, 0)
	for _, credit := range s.state.credits {
		if credit.EntrantID == entrantID {
			out = append(out, credit)
		}
	}
	return out, nil
}

func (s memoryCredits) CompetitionIDsForEntrant(_ context.Context, entrantID string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, credit := range s.state.credits {
		if credit.EntrantID != entrantID || seen[credit.CompetitionID] {
			continue
		}
		seen[credit.CompetitionID] = true
		out = append(out, credit.CompetitionID)
	}
	return out, nil
}

type memoryPendingOrders struct{ *memoryStores }

func (s memoryPendingOrders) Create(_ context.Context, in CreatePendingOrderInput) (PendingOrder, error) {
	for _, existing := range s.state.pendingOrders {
		if existing.Key() == in.Key {
			return PendingOrder{}, fmt.Errorf("%w: %s", ErrDuplicateOrder, in.Key)
		}
	}
	order := PendingOrder{
		ID:              uuid.NewString(),
		ExternalOrderID: in.Key.ExternalOrderID,
		ExternalSource:  in.Key.ExternalSource,
		CompetitionID:   in.CompetitionID,
		EntrantID:       in.EntrantID,
		RawPayload:      append([]byte(nil), in.RawPayload...),
		Reason:          in.Reason,
		Status:          PendingOrderStatusNeedsReview,
		CreatedAt:       s.now(),
	}
	s.state.pendingOrders[order.ID] = order
	s.state.pendingOrderIDs = append(s.state.pendingOrderIDs, order.ID)
	return order, nil
}

func (s memoryPendingOrders) FindByExternalOrder(_ context.Context, key OrderKey) (PendingOrder, bool, error) {
	for _, order := range s.state.pendingOrders {
		if order.Key() == key {
			return order, true, nil
		}
	}
	return PendingOrder{}, false, nil
}

func (s memoryPendingOrders) Get(_ context.Context, id string) (PendingOrder, error) {
	order, ok := s.state.pendingOrders[strings.TrimSpace(id)]
	if !ok {
		return PendingOrder{}, fmt.Errorf("%w: %s", ErrPendingOrderNotFound, id)
	}
	return order, nil
}

func (s memoryPendingOrders) List(_ context.Context, filter PendingOrderFilter) ([]PendingOrder, error) {
	out := make([]PendingOrder, 0, len(s.state.pendingOrderIDs))
	for _, id := range s.state.pendingOrderIDs {
		order := s.state.pendingOrders[id]
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s memoryPendingOrders) Transition(
	_ context.Context,
	id string,
	to PendingOrderStatus,
	actor string,
	notes string,
	at time.Time,
) (PendingOrder, error) {
	order, ok := s.state.pendingOrders[strings.TrimSpace(id)]
	if !ok {
		return PendingOrder{}, fmt.Errorf("%w: %s", ErrPendingOrderNotFound, id)
	}
	if order.Status != PendingOrderStatusNeedsReview {
		return PendingOrder{}, fmt.Errorf("%w: %s is %s", ErrPendingOrderNotReviewable, id, order.Status)
	}
	resolvedAt := at.UTC()
	order.Status = to
	order.ResolvedBy = actor
	order.ResolutionNotes = notes
	order.ResolvedAt = &resolvedAt
	s.state.pendingOrders[order.ID] = order
	return order, nil
}

type memoryClaims struct{ *memoryStores }

func (s memoryClaims) Claim(_ context.Context, claim OrderClaim) error {
	if _, exists := s.state.claims[claim.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, claim.Key)
	}
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = s.now()
	}
	s.state.claims[claim.Key] = claim
	return nil
}

func (s memoryClaims) Get(_ context.Context, key OrderKey) (OrderClaim, bool, error) {
	claim, ok := s.state.claims[key]
	return claim, ok, nil
}

type memoryEnqueuer struct{ *memoryStores }

func (s memoryEnqueuer) Enqueue(_ context.Context, event Event) error {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Name) == "" {
		return fmt.Errorf("core: outbox event id and name are required")
	}
	event.Payload = cloneFields(event.Payload)
	event.Metadata = cloneFields(event.Metadata)
	s.state.outbox = append(s.state.outbox, memoryOutboxRecord{event: event, status: "pending"})
	return nil
}

type memoryOutbox struct {
	store *MemoryStore
}

func (o *memoryOutbox) Enqueue(ctx context.Context, event Event) error {
	return o.store.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		return stores.Outbox().Enqueue(ctx, event)
	})
}

func (o *memoryOutbox) ClaimBatch(_ context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1
	}
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	now := o.store.now()
	out := make([]Event, 0, limit)
	for i := range o.store.state.outbox {
		record := &o.store.state.outbox[i]
		if record.status != "pending" {
			continue
		}
		if !record.nextAttemptAt.IsZero() && record.nextAttemptAt.After(now) {
			continue
		}
		record.status = "processing"
		event := record.event
		event.Payload = cloneFields(event.Payload)
		event.Metadata = cloneFields(event.Metadata)
		event.Metadata[MetadataKeyOutboxAttempts] = record.attempts
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *memoryOutbox) Ack(_ context.Context, eventID string) error {
	return o.update(eventID, func(record *memoryOutboxRecord) {
		record.status = "delivered"
		record.lastError = ""
		record.nextAttemptAt = time.Time{}
	})
}

func (o *memoryOutbox) Retry(_ context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	return o.update(eventID, func(record *memoryOutboxRecord) {
		record.attempts++
		record.status = "pending"
		if nextAttemptAt.IsZero() {
			record.status = "failed"
		}
		record.nextAttemptAt = nextAttemptAt
		if cause != nil {
			record.lastError = cause.Error()
		}
	})
}

func (o *memoryOutbox) update(eventID string, apply func(record *memoryOutboxRecord)) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	for i := range o.store.state.outbox {
		if o.store.state.outbox[i].event.ID == eventID {
			apply(&o.store.state.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("core: outbox event %q not found", eventID)
}

// OutboxStatusCounts reports how many outbox events sit in each status.
func (m *MemoryStore) OutboxStatusCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, record := range m.state.outbox {
		counts[record.status]++
	}
	return counts
}

var (
	_ UnitOfWork  = (*MemoryStore)(nil)
	_ OutboxStore = (*memoryOutbox)(nil)
)
