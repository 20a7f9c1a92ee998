package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-entry-credits/adapters/gojob"
	"github.com/goliatone/go-entry-credits/core"
)

const (
	homeCompID       = "0b7d7c36-6a4e-4e4b-9a39-2f1f4c7a5d10"
	commercialCompID = "2d9f9e58-8c60-4a6d-9c5b-4b3b6e9c7f32"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_MigrateSeedReviewAndDispatch(t *testing.T) {
	t.Setenv("ENTRY_CREDITS_WEBHOOK__SECRET", "webhook-secret")
	dsn := "file:" + filepath.Join(t.TempDir(), "entry-credits.db") + "?_foreign_keys=on"
	db := []string{"--db-driver", "sqlite3", "--db-dsn", dsn, "--log-level", "error"}
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, db...)...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out
	}

	if out := run("migrate"); !strings.Contains(out, "migrations applied") {
		t.Fatalf("unexpected migrate output %q", out)
	}
	run("competition", "upsert", "--id", homeCompID, "--event", "event-2024", "--type", "HOME", "--name", "Home draw")
	run("competition", "upsert", "--id", commercialCompID, "--event", "event-2024", "--type", "COMMERCIAL")
	listed := run("competition", "list", "--event", "event-2024")
	if !strings.Contains(listed, homeCompID) || !strings.Contains(listed, commercialCompID) {
		t.Fatalf("expected both competitions, got %q", listed)
	}

	a, err := newApp(context.Background(), globalOptions{driver: "sqlite3", dsn: dsn, logLevel: "error"}, io.Discard)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	credited, err := a.service.Ingest(context.Background(), cliOrder("O-1", homeCompID))
	if err != nil {
		t.Fatalf("ingest home order: %v", err)
	}
	pending, err := a.service.Ingest(context.Background(), cliOrder("O-2", commercialCompID))
	if err != nil {
		t.Fatalf("ingest commercial order: %v", err)
	}
	_ = a.Close()
	if pending.Outcome != core.IngestOutcomePendingReview || pending.PendingOrderID == "" {
		t.Fatalf("expected pending review, got %+v", pending)
	}

	queue := run("review", "list")
	if !strings.Contains(queue, "shop/O-2") || !strings.Contains(queue, string(core.ReviewReasonCompetitionExclusivity)) {
		t.Fatalf("expected pending order in review list, got %q", queue)
	}
	if out := run("review", "resolve", pending.PendingOrderID, "--actor", "ops@x.com", "--notes", "refunded"); !strings.Contains(out, "RESOLVED") {
		t.Fatalf("unexpected resolve output %q", out)
	}
	if _, err := execute(t, append([]string{"review", "cancel", pending.PendingOrderID, "--actor", "ops@x.com"}, db...)...); err == nil {
		t.Fatalf("expected terminal pending order to reject cancel")
	}

	dispatched := run("dispatch-outbox")
	if !strings.Contains(dispatched, "failed=0") || !strings.Contains(dispatched, "outbox pending=0") {
		t.Fatalf("unexpected dispatch output %q", dispatched)
	}

	if out := run("credits", credited.EntrantID); !strings.Contains(out, "available credits: 1") {
		t.Fatalf("unexpected credits output %q", out)
	}
}

func TestServeApp_CommittedIngestDispatchesThroughJobWorker(t *testing.T) {
	t.Setenv("ENTRY_CREDITS_WEBHOOK__SECRET", "webhook-secret")
	dsn := "file:" + filepath.Join(t.TempDir(), "entry-credits.db") + "?_foreign_keys=on"
	for _, args := range [][]string{
		{"migrate"},
		{"competition", "upsert", "--id", homeCompID, "--event", "event-2024", "--type", "HOME"},
	} {
		if _, err := execute(t, append(args, "--db-driver", "sqlite3", "--db-dsn", dsn, "--log-level", "error")...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, globalOptions{driver: "sqlite3", dsn: dsn, logLevel: "error"}, io.Discard,
		withJobQueue(gojob.RuntimeConfig{IdleDelay: 5 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()
	if a.jobs == nil {
		t.Fatalf("expected job runtime to be wired")
	}

	if _, err := a.service.Ingest(ctx, cliOrder("O-1", homeCompID)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var queued int
	if err := a.factory.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+gojob.QueueTable).Scan(&queued); err != nil {
		t.Fatalf("count queued jobs: %v", err)
	}
	if queued != 1 {
		t.Fatalf("expected the committed ingest to enqueue one dispatch job, got %d", queued)
	}

	if err := a.jobs.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		counts, err := a.factory.OutboxStore().Counts(ctx)
		if err != nil {
			t.Fatalf("outbox counts: %v", err)
		}
		if counts["delivered"] == 1 && counts["pending"] == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not deliver the outbox event, got %#v", counts)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCLI_RejectsMissingSecret(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "entry-credits.db")
	if _, err := execute(t, "migrate", "--db-dsn", dsn); err == nil {
		t.Fatalf("expected config validation to fail without a webhook secret")
	}
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{"": "sqlite", "sqlite3": "sqlite", "postgres": "postgres"} {
		got, dialect, err := dialectFor(driver)
		if err != nil || got != want || dialect == nil {
			t.Fatalf("%q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, _, err := dialectFor("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func cliOrder(orderID, competitionID string) core.OrderNotification {
	return core.OrderNotification{
		ExternalOrderID: orderID,
		ExternalSource:  "shop",
		CompetitionID:   competitionID,
		Quantity:        1,
		PurchasedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Customer:        core.Customer{Email: "a@x.com", Name: "Ann"},
		RawPayload:      []byte(`{"externalOrderId":"` + orderID + `"}`),
	}
}
