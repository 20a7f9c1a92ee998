package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusProcessing = "processing"
	outboxStatusDelivered  = "delivered"
	outboxStatusFailed     = "failed"
)

func newOutboxRecord(event core.Event, now time.Time) (*outboxRecord, error) {
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("sqlstore: outbox event id is required")
	}
	if strings.TrimSpace(event.Name) == "" {
		return nil, fmt.Errorf("sqlstore: outbox event name is required")
	}
	if strings.TrimSpace(event.AggregateType) == "" || strings.TrimSpace(event.AggregateID) == "" {
		return nil, fmt.Errorf("sqlstore: outbox aggregate type and aggregate id are required")
	}
	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = now
	}
	return &outboxRecord{
		ID:            uuid.NewString(),
		EventID:       strings.TrimSpace(event.ID),
		EventName:     strings.TrimSpace(event.Name),
		AggregateType: strings.TrimSpace(event.AggregateType),
		AggregateID:   strings.TrimSpace(event.AggregateID),
		Payload:       copyAnyMap(event.Payload),
		Metadata:      copyAnyMap(event.Metadata),
		Status:        outboxStatusPending,
		Attempts:      0,
		LastError:     "",
		OccurredAt:    occurredAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// txOutbox appends events in the same transaction as the ledger writes.
type txOutbox struct {
	tx   bun.Tx
	repo repository.Repository[*outboxRecord]
	now  func() time.Time
}

func (o txOutbox) Enqueue(ctx context.Context, event core.Event) error {
	record, err := newOutboxRecord(event, o.now())
	if err != nil {
		return err
	}
	_, err = o.repo.CreateTx(ctx, o.tx, record)
	return err
}

// OutboxStore is the dispatcher side of the entry credit outbox.
type OutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*outboxRecord]
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*outboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo}, nil
}

func (s *OutboxStore) Enqueue(ctx context.Context, event core.Event) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	record, err := newOutboxRecord(event, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var records []outboxRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM entry_credit_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY occurred_at ASC
	LIMIT ?
)
UPDATE entry_credit_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	event_id,
	event_name,
	aggregate_type,
	aggregate_id,
	payload,
	metadata,
	status,
	attempts,
	next_attempt_at,
	last_error,
	occurred_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			outboxStatusPending,
			now,
			limit,
			outboxStatusProcessing,
			now,
			outboxStatusPending,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.Event, 0, len(records))
	for _, record := range records {
		events = append(events, outboxRecordToEvent(record))
	}
	return events, nil
}

func (s *OutboxStore) Ack(ctx context.Context, eventID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Set("status = ?", outboxStatusDelivered).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return err
}

// Retry schedules another delivery at nextAttemptAt. A zero nextAttemptAt
// parks the event as failed.
func (s *OutboxStore) Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	status := outboxStatusPending
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		nextValue := nextAttemptAt.UTC()
		next = &nextValue
	} else {
		status = outboxStatusFailed
	}

	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return err
}

type outboxStatusCount struct {
	Status string `bun:"status"`
	Total  int    `bun:"total"`
}

// Counts reports how many outbox events sit in each status.
func (s *OutboxStore) Counts(ctx context.Context) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	var rows []outboxStatusCount
	err := s.db.NewSelect().
		Model((*outboxRecord)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS total").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func outboxRecordToEvent(record outboxRecord) core.Event {
	event := core.Event{
		ID:            record.EventID,
		Name:          record.EventName,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		Payload:       copyAnyMap(record.Payload),
		Metadata:      copyAnyMap(record.Metadata),
		OccurredAt:    record.OccurredAt.UTC(),
	}
	event.Metadata[core.MetadataKeyOutboxAttempts] = record.Attempts
	return event
}
