package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	testSecret       = "webhook-secret"
	testEventID      = "event-2024"
	homeCompID       = "0b7d7c36-6a4e-4e4b-9a39-2f1f4c7a5d10"
	homeCompTwoID    = "1c8e8d47-7b5f-4f5c-8b4a-3a2a5d8b6e21"
	commercialCompID = "2d9f9e58-8c60-4a6d-9c5b-4b3b6e9c7f32"
	otherEventCompID = "3ea0af69-9d71-4b7e-8d6c-5c4c7fad8043"
)

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	store.PutCompetition(Competition{ID: homeCompID, EventID: testEventID, Type: "HOME", Name: "Home draw"})
	store.PutCompetition(Competition{ID: homeCompTwoID, EventID: testEventID, Type: "home", Name: "Second home draw"})
	store.PutCompetition(Competition{ID: commercialCompID, EventID: testEventID, Type: "COMMERCIAL", Name: "Commercial draw"})
	store.PutCompetition(Competition{ID: otherEventCompID, EventID: "event-2025", Type: "COMMERCIAL", Name: "Next year"})
	return store
}

func newTestService(t *testing.T, uow UnitOfWork, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithUnitOfWork(uow),
		WithLogger(stubLogger{}),
		WithRetrySleeper(func(context.Context, time.Duration) error { return nil }),
	}
	svc, err := NewService(Config{Webhook: WebhookConfig{Secret: testSecret}}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testOrder(orderID, competitionID, email string, quantity int) OrderNotification {
	return OrderNotification{
		ExternalOrderID: orderID,
		ExternalSource:  "shop",
		CompetitionID:   competitionID,
		Quantity:        quantity,
		PurchasedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Customer:        Customer{Email: email, Name: "Ann"},
		RawPayload:      []byte(`{"externalOrderId":"` + orderID + `"}`),
	}
}

func findEntrant(t *testing.T, store *MemoryStore, email string) (Entrant, bool) {
	t.Helper()
	var (
		entrant Entrant
		found   bool
	)
	err := store.RunInTx(context.Background(), func(ctx context.Context, stores Stores) error {
		var err error
		entrant, found, err = stores.Entrants().FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		t.Fatalf("find entrant: %v", err)
	}
	return entrant, found
}

// flakyUnitOfWork fails the first failures calls before delegating.
type flakyUnitOfWork struct {
	inner    UnitOfWork
	failures int
	err      error

	mu    sync.Mutex
	calls int
}

func (f *flakyUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if call <= f.failures {
		return f.err
	}
	return f.inner.RunInTx(ctx, fn)
}

type captureJobEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
}

func (c *captureJobEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureJobEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
