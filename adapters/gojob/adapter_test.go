package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDOutboxDispatch,
		ScriptPath:     JobIDOutboxDispatch,
		Parameters:     map[string]any{"batch_size": 25},
		IdempotencyKey: "outbox:shop/O-1",
		DedupPolicy:    "replace",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != original.ScriptPath {
		t.Fatalf("expected script path %q, got %q", original.ScriptPath, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["batch_size"] != 25 {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueuerAdapter_ReportsReceiptAndErrors(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{receipt: queue.EnqueueReceipt{DispatchID: "dispatch-1"}}
	var receipts []queue.EnqueueReceipt
	adapter := NewEnqueuerAdapter(enqueuer, WithReceiptObserver(func(receipt queue.EnqueueReceipt) {
		receipts = append(receipts, receipt)
	}))

	msg := &core.JobExecutionMessage{
		JobID:      JobIDOutboxDispatch,
		ScriptPath: JobIDOutboxDispatch,
		Parameters: map[string]any{"batch_size": 50},
	}
	if err := adapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDOutboxDispatch {
		t.Fatalf("expected mapped go-job message")
	}
	if len(receipts) != 1 || receipts[0].DispatchID != "dispatch-1" {
		t.Fatalf("expected receipt to be observed, got %#v", receipts)
	}

	enqueuer.err = errors.New("queue full")
	err := adapter.Enqueue(ctx, msg)
	if err == nil || !errors.Is(err, enqueuer.err) {
		t.Fatalf("expected wrapped queue error, got %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("failed enqueue must not report a receipt")
	}
	if err := adapter.Enqueue(ctx, nil); err == nil {
		t.Fatalf("expected nil message error")
	}
	if err := NewEnqueuerAdapter(nil).Enqueue(ctx, msg); err == nil {
		t.Fatalf("expected unconfigured enqueuer error")
	}
}

func TestServiceIngestEnqueuesThroughAdapter(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	store := core.NewMemoryStore()
	store.PutCompetition(core.Competition{
		ID:      "0b7d7c36-6a4e-4e4b-9a39-2f1f4c7a5d10",
		EventID: "event-2024",
		Type:    "HOME",
	})
	svc, err := core.NewService(core.Config{Webhook: core.WebhookConfig{Secret: "secret"}},
		core.WithUnitOfWork(store),
		core.WithJobEnqueuer(NewEnqueuerAdapter(enqueuer)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Ingest(context.Background(), core.OrderNotification{
		ExternalOrderID: "O-1",
		ExternalSource:  "shop",
		CompetitionID:   "0b7d7c36-6a4e-4e4b-9a39-2f1f4c7a5d10",
		Quantity:        1,
		PurchasedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Customer:        core.Customer{Email: "a@x.com"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDOutboxDispatch {
		t.Fatalf("expected outbox dispatch job, got %+v", enqueuer.last)
	}
	if enqueuer.last.IdempotencyKey != "outbox:shop/O-1" || enqueuer.last.DedupPolicy != job.DedupPolicyReplace {
		t.Fatalf("unexpected dedup settings %+v", enqueuer.last)
	}
}

func TestRetryPolicy_BoundsRedelivery(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Interval: time.Second, MaxDelay: 3 * time.Second}.WorkerPolicy()
	failure := errors.New("projector down")

	first := policy.Decide(1, failure)
	if first.Disposition != queue.NackDispositionRetry || first.Delay != time.Second || first.Reason != "projector down" {
		t.Fatalf("unexpected first nack %+v", first)
	}
	second := policy.Decide(2, failure)
	if second.Disposition != queue.NackDispositionRetry || second.Delay != 2*time.Second {
		t.Fatalf("expected doubled delay, got %+v", second)
	}
	last := policy.Decide(3, failure)
	if last.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", last)
	}

	defaults := RetryPolicy{}.WorkerPolicy()
	if defaults.MaxAttempts != defaultMaxAttempts || defaults.Backoff.Interval != defaultRetryInterval || defaults.Backoff.MaxInterval != defaultMaxRetryDelay {
		t.Fatalf("unexpected default policy %+v", defaults)
	}
}

func TestOutboxDispatchHandler_ExecutesDispatchPass(t *testing.T) {
	runner := &stubRunner{stats: core.DispatchStats{Claimed: 2, Delivered: 2}}
	handler, err := NewOutboxDispatchHandler(runner)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if handler.GetID() != JobIDOutboxDispatch || handler.GetPath() != JobIDOutboxDispatch {
		t.Fatalf("task must be addressed by the dispatch job id")
	}

	err = handler.Execute(context.Background(), &job.ExecutionMessage{
		JobID:      JobIDOutboxDispatch,
		Parameters: map[string]any{"batch_size": float64(20)},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if runner.calls != 1 || runner.batchSize != 20 {
		t.Fatalf("expected one pass with batch 20, got calls=%d batch=%d", runner.calls, runner.batchSize)
	}
}

func TestOutboxDispatchHandler_ReturnsRetryableDispatchError(t *testing.T) {
	runner := &stubRunner{err: errors.New("projector down"), stats: core.DispatchStats{Claimed: 1, Retried: 1}}
	handler, err := NewOutboxDispatchHandler(runner, WithHandlerLogger(glog.Nop()))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	err = handler.Execute(context.Background(), &job.ExecutionMessage{JobID: JobIDOutboxDispatch})
	if !errors.Is(err, runner.err) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	var terminal job.NonRetryableError
	if errors.As(err, &terminal) {
		t.Fatalf("dispatch failures must stay retryable")
	}
	decision := RetryPolicy{MaxAttempts: 5}.WorkerPolicy().Decide(1, err)
	if decision.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry, got %+v", decision)
	}
}

func TestOutboxDispatchHandler_UnknownJobIsTerminal(t *testing.T) {
	runner := &stubRunner{}
	handler, err := NewOutboxDispatchHandler(runner)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	err = handler.Execute(context.Background(), &job.ExecutionMessage{JobID: "something.else"})
	var terminal job.NonRetryableError
	if !errors.As(err, &terminal) || !terminal.NonRetryable() {
		t.Fatalf("expected terminal error, got %v", err)
	}
	decision := RetryPolicy{MaxAttempts: 5}.WorkerPolicy().Decide(1, err)
	if decision.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter, got %+v", decision)
	}
	if runner.calls != 0 {
		t.Fatalf("dispatcher should not run for unknown jobs")
	}
}

func TestBatchSize(t *testing.T) {
	cases := []struct {
		params map[string]any
		want   int
	}{
		{params: nil, want: 0},
		{params: map[string]any{"batch_size": 7}, want: 7},
		{params: map[string]any{"batch_size": int64(9)}, want: 9},
		{params: map[string]any{"batch_size": float64(11)}, want: 11},
		{params: map[string]any{"batch_size": " 13 "}, want: 13},
		{params: map[string]any{"batch_size": -4}, want: 0},
		{params: map[string]any{"batch_size": true}, want: 0},
	}
	for _, tc := range cases {
		if got := BatchSize(tc.params); got != tc.want {
			t.Fatalf("params %#v: expected %d, got %d", tc.params, tc.want, got)
		}
	}
}

func TestWorkerHook_RecordsLifecycle(t *testing.T) {
	metrics := &captureMetrics{}
	hook := NewWorkerHook(nil, metrics)

	hook.OnStart(context.Background(), worker.Event{Message: &job.ExecutionMessage{JobID: JobIDOutboxDispatch}})
	hook.OnRetry(context.Background(), worker.Event{
		Delivery: &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDOutboxDispatch}},
		Attempt:  2,
		Delay:    5 * time.Second,
		Err:      errors.New("retry"),
		Duration: 250 * time.Millisecond,
	})

	if len(metrics.counters) != 2 {
		t.Fatalf("expected two counters, got %d", len(metrics.counters))
	}
	retry := metrics.counters[1]
	if retry.tags["status"] != "retry" || retry.tags["job_id"] != JobIDOutboxDispatch {
		t.Fatalf("unexpected retry tags %#v", retry.tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0] != 0.25 {
		t.Fatalf("expected one duration sample, got %#v", metrics.histograms)
	}
}

type stubRunner struct {
	stats     core.DispatchStats
	err       error
	batchSize int
	calls     int
}

func (s *stubRunner) DispatchPending(_ context.Context, batchSize int) (core.DispatchStats, error) {
	s.calls++
	s.batchSize = batchSize
	return s.stats, s.err
}

type capturedCounter struct {
	name string
	tags map[string]string
}

type captureMetrics struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []float64
}

func (m *captureMetrics) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, tags: tags})
}

func (m *captureMetrics) ObserveHistogram(_ context.Context, _ string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, value)
}

type stubQueueEnqueuer struct {
	last    *job.ExecutionMessage
	receipt queue.EnqueueReceipt
	err     error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if s.err != nil {
		return queue.EnqueueReceipt{}, s.err
	}
	s.last = msg
	return s.receipt, nil
}

type stubQueueDelivery struct {
	msg *job.ExecutionMessage
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	return nil
}

func (s *stubQueueDelivery) Nack(context.Context, queue.NackOptions) error {
	return nil
}
