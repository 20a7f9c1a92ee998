package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	creditmigrations "github.com/goliatone/go-entry-credits/migrations"
	sqlstore "github.com/goliatone/go-entry-credits/store/sql"
	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	testEventID      = "event-2024"
	homeCompID       = "0b7d7c36-6a4e-4e4b-9a39-2f1f4c7a5d10"
	commercialCompID = "2d9f9e58-8c60-4a6d-9c5b-4b3b6e9c7f32"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "entry-credits-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"entrants",
		"competitions",
		"entry_credits",
		"pending_orders",
		"order_claims",
		"entry_credit_outbox",
	} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestIngest_CreditsOrderAndRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	first, err := svc.Ingest(ctx, testOrder("O-1", homeCompID, "Ann@Example.com"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if first.Outcome != core.IngestOutcomeProcessed || first.CreditsAdded != 1 || first.EntrantID == "" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := svc.Ingest(ctx, testOrder("O-1", homeCompID, "ann@example.com"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if second.Outcome != core.IngestOutcomeAlreadyProcessed || second.EntrantID != first.EntrantID {
		t.Fatalf("unexpected redelivery result %+v", second)
	}
	if second.CreditsAdded != 0 {
		t.Fatalf("expected no credits on redelivery, got %d", second.CreditsAdded)
	}

	credits, err := svc.CreditsByEntrant(ctx, first.EntrantID)
	if err != nil {
		t.Fatalf("credits by entrant: %v", err)
	}
	if len(credits) != 1 || credits[0].Quantity != 1 || credits[0].CompetitionID != homeCompID {
		t.Fatalf("unexpected credits %+v", credits)
	}

	counts, err := factory.OutboxStore().Counts(ctx)
	if err != nil {
		t.Fatalf("outbox counts: %v", err)
	}
	if counts["pending"] != 1 {
		t.Fatalf("expected one pending outbox event, got %#v", counts)
	}
}

func TestIngest_ExclusivityQueuesReviewAndReviewIsTerminal(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	if _, err := svc.Ingest(ctx, testOrder("O-1", homeCompID, "a@x.com")); err != nil {
		t.Fatalf("ingest home: %v", err)
	}
	pending, err := svc.Ingest(ctx, testOrder("O-2", commercialCompID, "a@x.com"))
	if err != nil {
		t.Fatalf("ingest commercial: %v", err)
	}
	if pending.Outcome != core.IngestOutcomePendingReview || pending.PendingOrderID == "" {
		t.Fatalf("expected pending review, got %+v", pending)
	}
	if pending.Explanation == "" {
		t.Fatalf("expected explanation on pending review")
	}

	redelivered, err := svc.Ingest(ctx, testOrder("O-2", commercialCompID, "a@x.com"))
	if err != nil {
		t.Fatalf("redeliver pending order: %v", err)
	}
	if redelivered.Outcome != core.IngestOutcomeAlreadyProcessed {
		t.Fatalf("expected already processed, got %+v", redelivered)
	}

	listed, err := svc.ListPendingOrders(ctx, core.PendingOrderFilter{Status: core.PendingOrderStatusNeedsReview})
	if err != nil {
		t.Fatalf("list pending orders: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != pending.PendingOrderID {
		t.Fatalf("unexpected pending orders %+v", listed)
	}
	if listed[0].Reason != core.ReviewReasonCompetitionExclusivity {
		t.Fatalf("unexpected reason %q", listed[0].Reason)
	}

	resolved, err := svc.ResolvePendingOrder(ctx, core.ReviewDecision{
		PendingOrderID: pending.PendingOrderID,
		Actor:          "reviewer@x.com",
		Notes:          "customer confirmed",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != core.PendingOrderStatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved order %+v", resolved)
	}
	if resolved.ResolvedBy != "reviewer@x.com" {
		t.Fatalf("expected resolver recorded, got %q", resolved.ResolvedBy)
	}

	_, err = svc.CancelPendingOrder(ctx, core.ReviewDecision{
		PendingOrderID: pending.PendingOrderID,
		Actor:          "reviewer@x.com",
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Code != http.StatusConflict {
		t.Fatalf("expected conflict on second decision, got %v", err)
	}

	stillPending, err := svc.ListPendingOrders(ctx, core.PendingOrderFilter{Status: core.PendingOrderStatusNeedsReview})
	if err != nil {
		t.Fatalf("list pending orders: %v", err)
	}
	if len(stillPending) != 0 {
		t.Fatalf("expected empty review queue, got %+v", stillPending)
	}
}

func TestIngest_ConcurrentRedeliveriesCreditOnce(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	const workers = 8
	results := make([]core.IngestResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(ctx, testOrder("O-race", homeCompID, "race@x.com"))
		}(i)
	}
	wg.Wait()

	processed := 0
	entrantID := ""
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case core.IngestOutcomeProcessed:
			processed++
		case core.IngestOutcomeAlreadyProcessed:
		default:
			t.Fatalf("unexpected outcome %+v", results[i])
		}
		if entrantID == "" {
			entrantID = results[i].EntrantID
		}
		if results[i].EntrantID != entrantID {
			t.Fatalf("expected one entrant, got %q and %q", entrantID, results[i].EntrantID)
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processed delivery, got %d", processed)
	}

	credits, err := svc.CreditsByEntrant(ctx, entrantID)
	if err != nil {
		t.Fatalf("credits by entrant: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected one credit, got %d", len(credits))
	}
}

func TestIngest_ConcurrentConflictingTypesQueueOne(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	orders := []core.OrderNotification{
		testOrder("O-home", homeCompID, "new@x.com"),
		testOrder("O-commercial", commercialCompID, "new@x.com"),
	}
	results := make([]core.IngestResult, len(orders))
	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(ctx, orders[i])
		}(i)
	}
	wg.Wait()

	outcomes := map[core.IngestOutcome]int{}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("order %d: %v", i, errs[i])
		}
		outcomes[results[i].Outcome]++
	}
	if outcomes[core.IngestOutcomeProcessed] != 1 || outcomes[core.IngestOutcomePendingReview] != 1 {
		t.Fatalf("expected one processed and one pending review, got %#v", outcomes)
	}
	if results[0].EntrantID != results[1].EntrantID {
		t.Fatalf("expected a single entrant for one email")
	}
}

func TestIngest_UnknownCompetitionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	_, err := svc.Ingest(ctx, testOrder("O-404", "7a1f1f1e-1111-4c4c-8d8d-000000000000", "ghost@x.com"))
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Code != http.StatusNotFound {
		t.Fatalf("expected not found envelope, got %v", err)
	}

	var found bool
	err = factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
		var findErr error
		_, found, findErr = stores.Entrants().FindByEmail(ctx, "ghost@x.com")
		return findErr
	})
	if err != nil {
		t.Fatalf("find entrant: %v", err)
	}
	if found {
		t.Fatalf("expected entrant creation to roll back")
	}
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	uow := factory.UnitOfWork()

	boom := errors.New("boom")
	err := uow.RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
		if _, err := stores.Entrants().Create(ctx, core.CreateEntrantInput{Email: "rollback@x.com"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = uow.RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
		_, found, findErr := stores.Entrants().FindByEmail(ctx, "rollback@x.com")
		if findErr != nil {
			return findErr
		}
		if found {
			return fmt.Errorf("entrant survived rollback")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify rollback: %v", err)
	}
}

func TestEntrantStore_EmailUniquenessAndLock(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()

	err := factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
		entrant, err := stores.Entrants().Create(ctx, core.CreateEntrantInput{
			Email:   " Dup@X.com ",
			Address: &core.Address{City: "Springfield"},
		})
		if err != nil {
			return err
		}
		if entrant.Email != "dup@x.com" || entrant.Address == nil || entrant.Address.City != "Springfield" {
			return fmt.Errorf("unexpected entrant %+v", entrant)
		}
		if err := stores.Locker().LockEntrant(ctx, entrant.ID); err != nil {
			return err
		}
		if err := stores.Locker().LockEntrant(ctx, "missing"); !errors.Is(err, core.ErrEntrantNotFound) {
			return fmt.Errorf("expected ErrEntrantNotFound, got %v", err)
		}
		_, err = stores.Entrants().Create(ctx, core.CreateEntrantInput{Email: "dup@x.com"})
		if !errors.Is(err, core.ErrEntrantEmailTaken) {
			return fmt.Errorf("expected ErrEntrantEmailTaken, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("entrant store: %v", err)
	}
}

func TestOrderClaimStore_RejectsSecondClaim(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()

	key := core.NewOrderKey("shop", "O-claim")
	err := factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
		entrant, err := stores.Entrants().Create(ctx, core.CreateEntrantInput{Email: "claim@x.com"})
		if err != nil {
			return err
		}
		claim := core.OrderClaim{Key: key, Outcome: core.ClaimOutcomeCredited, EntrantID: entrant.ID}
		if err := stores.Claims().Claim(ctx, claim); err != nil {
			return err
		}
		if err := stores.Claims().Claim(ctx, claim); !errors.Is(err, core.ErrDuplicateOrder) {
			return fmt.Errorf("expected ErrDuplicateOrder, got %v", err)
		}
		stored, found, err := stores.Claims().Get(ctx, key)
		if err != nil {
			return err
		}
		if !found || stored.EntrantID != entrant.ID || stored.Outcome != core.ClaimOutcomeCredited {
			return fmt.Errorf("unexpected claim %+v found=%v", stored, found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("claim store: %v", err)
	}
}

func TestOutboxStore_ClaimAckRetryAndFail(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	outbox := factory.OutboxStore()

	for _, id := range []string{"evt_1", "evt_2"} {
		if err := outbox.Enqueue(ctx, core.Event{
			ID:            id,
			Name:          core.EventEntryCreditAdded,
			AggregateType: core.AggregateTypeEntryCredit,
			AggregateID:   "credit-" + id,
			Payload:       map[string]any{"quantity": 1},
			OccurredAt:    time.Now().UTC(),
		}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	claimed, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected two claimed events, got %d", len(claimed))
	}
	if attempts, ok := claimed[0].Metadata[core.MetadataKeyOutboxAttempts].(int); !ok || attempts != 0 {
		t.Fatalf("expected attempts metadata 0, got %#v", claimed[0].Metadata[core.MetadataKeyOutboxAttempts])
	}
	again, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected processing events to stay claimed, got %d", len(again))
	}

	if err := outbox.Ack(ctx, "evt_1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := outbox.Retry(ctx, "evt_2", errors.New("downstream"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	retried, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim retried: %v", err)
	}
	if len(retried) != 1 || retried[0].ID != "evt_2" {
		t.Fatalf("expected evt_2 to be redelivered, got %+v", retried)
	}
	if attempts := retried[0].Metadata[core.MetadataKeyOutboxAttempts]; attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %#v", attempts)
	}
	if err := outbox.Retry(ctx, "evt_2", errors.New("still down"), time.Time{}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	counts, err := outbox.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["delivered"] != 1 || counts["failed"] != 1 || counts["pending"] != 0 {
		t.Fatalf("unexpected counts %#v", counts)
	}
}

func TestOutboxDispatcher_DeliversIngestEvents(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()
	svc := newSQLService(t, factory)

	if _, err := svc.Ingest(ctx, testOrder("O-1", homeCompID, "a@x.com")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.Ingest(ctx, testOrder("O-2", commercialCompID, "a@x.com")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var (
		mu    sync.Mutex
		names []string
	)
	registry := core.NewEventProjectorRegistry()
	registry.Register("capture", core.EventHandlerFunc(func(_ context.Context, event core.Event) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, event.Name)
		return nil
	}))
	dispatcher, err := core.NewOutboxDispatcher(factory.OutboxStore(), registry, core.DefaultOutboxDispatcherConfig())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.DispatchPending(ctx, 0)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Delivered != 2 {
		t.Fatalf("expected two deliveries, got %+v", stats)
	}
	mu.Lock()
	defer mu.Unlock()
	delivered := map[string]bool{}
	for _, name := range names {
		delivered[name] = true
	}
	if len(names) != 2 || !delivered[core.EventEntryCreditAdded] || !delivered[core.EventPendingOrderCreated] {
		t.Fatalf("unexpected delivered events %v", names)
	}
}

func TestCompetitionStore_UpsertEvictsCachedCompetition(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSeededFactory(t)
	defer cleanup()

	readType := func() string {
		t.Helper()
		var competition core.Competition
		err := factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, stores core.Stores) error {
			var getErr error
			competition, getErr = stores.Catalog().GetCompetition(ctx, homeCompID)
			return getErr
		})
		if err != nil {
			t.Fatalf("get competition: %v", err)
		}
		return competition.Type
	}

	if got := readType(); got != "HOME" {
		t.Fatalf("expected HOME, got %q", got)
	}
	if _, err := factory.CompetitionStore().Upsert(ctx, core.Competition{
		ID:      homeCompID,
		EventID: testEventID,
		Type:    "COMMERCIAL",
		Name:    "Renamed",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := readType(); got != "COMMERCIAL" {
		t.Fatalf("expected cache eviction to expose COMMERCIAL, got %q", got)
	}

	listed, err := factory.CompetitionStore().ListByEvent(ctx, testEventID)
	if err != nil {
		t.Fatalf("list competitions: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected two competitions, got %d", len(listed))
	}
	if _, err := factory.CompetitionStore().Get(ctx, "7a1f1f1e-1111-4c4c-8d8d-000000000000"); !errors.Is(err, core.ErrCompetitionNotFound) {
		t.Fatalf("expected ErrCompetitionNotFound, got %v", err)
	}
}

func newSeededFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		cleanup()
		t.Fatalf("new cache service: %v", err)
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithCacheService(cacheService))
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	for _, competition := range []core.Competition{
		{ID: homeCompID, EventID: testEventID, Type: "HOME", Name: "Home draw"},
		{ID: commercialCompID, EventID: testEventID, Type: "COMMERCIAL", Name: "Commercial draw"},
	} {
		if _, err := factory.CompetitionStore().Upsert(context.Background(), competition); err != nil {
			cleanup()
			t.Fatalf("seed competition: %v", err)
		}
	}
	return factory, cleanup
}

func newSQLService(t *testing.T, factory *sqlstore.RepositoryFactory) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.Config{Webhook: core.WebhookConfig{Secret: "webhook-secret"}},
		core.WithUnitOfWork(factory.UnitOfWork()),
		core.WithRetrySleeper(func(context.Context, time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testOrder(orderID, competitionID, email string) core.OrderNotification {
	return core.OrderNotification{
		ExternalOrderID: orderID,
		ExternalSource:  "shop",
		CompetitionID:   competitionID,
		Quantity:        1,
		PurchasedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Customer:        core.Customer{Email: email, Name: "Ann"},
		RawPayload:      []byte(`{"externalOrderId":"` + orderID + `"}`),
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:entry-credits-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = creditmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != creditmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, creditmigrations.WithValidationTargets(creditmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
