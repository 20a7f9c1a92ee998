package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EntryCreditStore struct {
	tx   bun.Tx
	repo repository.Repository[*entryCreditRecord]
	now  func() time.Time
}

func (s *EntryCreditStore) Create(ctx context.Context, in core.IssueCreditInput) (core.EntryCredit, error) {
	if in.Key.IsZero() {
		return core.EntryCredit{}, fmt.Errorf("sqlstore: credit order key is required")
	}
	if in.Quantity <= 0 {
		return core.EntryCredit{}, fmt.Errorf("sqlstore: credit quantity must be positive")
	}
	record := &entryCreditRecord{
		ID:              uuid.NewString(),
		EntrantID:       strings.TrimSpace(in.Entrant.ID),
		CompetitionID:   normalizeCompetitionID(in.CompetitionID),
		Quantity:        in.Quantity,
		UsedCount:       0,
		ExternalOrderID: in.Key.ExternalOrderID,
		ExternalSource:  in.Key.ExternalSource,
		Status:          string(core.CreditStatusActive),
		PurchasedAt:     in.PurchasedAt.UTC(),
		CreatedAt:       s.now(),
	}
	inserted, err := s.repo.CreateTx(ctx, s.tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.EntryCredit{}, fmt.Errorf("%w: %s", core.ErrDuplicateOrder, in.Key)
		}
		return core.EntryCredit{}, err
	}
	return inserted.toDomain(), nil
}

func (s *EntryCreditStore) FindByExternalOrder(ctx context.Context, key core.OrderKey) (core.EntryCredit, bool, error) {
	record := &entryCreditRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_source = ?", key.ExternalSource).
		Where("?TableAlias.external_order_id = ?", key.ExternalOrderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.EntryCredit{}, false, nil
		}
		return core.EntryCredit{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *EntryCreditStore) ListByEntrant(ctx context.Context, entrantID string) ([]core.EntryCredit, error) {
	var records []entryCreditRecord
	err := s.tx.NewSelect().
		Model(&records).
		Where("?TableAlias.entrant_id = ?", strings.TrimSpace(entrantID)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.EntryCredit, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EntryCreditStore) CompetitionIDsForEntrant(ctx context.Context, entrantID string) ([]string, error) {
	var ids []string
	err := s.tx.NewSelect().
		Model((*entryCreditRecord)(nil)).
		Distinct().
		Column("competition_id").
		Where("?TableAlias.entrant_id = ?", strings.TrimSpace(entrantID)).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

type PendingOrderStore struct {
	tx   bun.Tx
	repo repository.Repository[*pendingOrderRecord]
	now  func() time.Time
}

func (s *PendingOrderStore) Create(ctx context.Context, in core.CreatePendingOrderInput) (core.PendingOrder, error) {
	if in.Key.IsZero() {
		return core.PendingOrder{}, fmt.Errorf("sqlstore: pending order key is required")
	}
	record := &pendingOrderRecord{
		ID:              uuid.NewString(),
		ExternalOrderID: in.Key.ExternalOrderID,
		ExternalSource:  in.Key.ExternalSource,
		CompetitionID:   normalizeCompetitionID(in.CompetitionID),
		EntrantID:       strings.TrimSpace(in.EntrantID),
		RawPayload:      string(in.RawPayload),
		Reason:          string(in.Reason),
		Status:          string(core.PendingOrderStatusNeedsReview),
		CreatedAt:       s.now(),
	}
	inserted, err := s.repo.CreateTx(ctx, s.tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.PendingOrder{}, fmt.Errorf("%w: %s", core.ErrDuplicateOrder, in.Key)
		}
		return core.PendingOrder{}, err
	}
	return inserted.toDomain(), nil
}

func (s *PendingOrderStore) FindByExternalOrder(ctx context.Context, key core.OrderKey) (core.PendingOrder, bool, error) {
	record := &pendingOrderRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_source = ?", key.ExternalSource).
		Where("?TableAlias.external_order_id = ?", key.ExternalOrderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.PendingOrder{}, false, nil
		}
		return core.PendingOrder{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *PendingOrderStore) Get(ctx context.Context, id string) (core.PendingOrder, error) {
	record := &pendingOrderRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.PendingOrder{}, fmt.Errorf("%w: %s", core.ErrPendingOrderNotFound, id)
		}
		return core.PendingOrder{}, err
	}
	return record.toDomain(), nil
}

func (s *PendingOrderStore) List(ctx context.Context, filter core.PendingOrderFilter) ([]core.PendingOrder, error) {
	var records []pendingOrderRecord
	query := s.tx.NewSelect().Model(&records)
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if err := query.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.PendingOrder, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Transition only updates rows still in NEEDS_REVIEW, so two reviewers
// racing on the same order cannot both succeed.
func (s *PendingOrderStore) Transition(
	ctx context.Context,
	id string,
	to core.PendingOrderStatus,
	actor string,
	notes string,
	at time.Time,
) (core.PendingOrder, error) {
	if !to.Terminal() {
		return core.PendingOrder{}, fmt.Errorf("sqlstore: %q is not a terminal pending order status", to)
	}
	id = strings.TrimSpace(id)
	resolvedAt := at.UTC()
	res, err := s.tx.NewUpdate().
		Model((*pendingOrderRecord)(nil)).
		Set("status = ?", string(to)).
		Set("resolved_by = ?", strings.TrimSpace(actor)).
		Set("resolution_notes = ?", strings.TrimSpace(notes)).
		Set("resolved_at = ?", resolvedAt).
		Where("id = ?", id).
		Where("status = ?", string(core.PendingOrderStatusNeedsReview)).
		Exec(ctx)
	if err != nil {
		return core.PendingOrder{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.PendingOrder{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return core.PendingOrder{}, err
	}
	if affected == 0 {
		return core.PendingOrder{}, fmt.Errorf("%w: %s is %s", core.ErrPendingOrderNotReviewable, id, current.Status)
	}
	return current, nil
}

type OrderClaimStore struct {
	tx  bun.Tx
	now func() time.Time
}

func (s *OrderClaimStore) Claim(ctx context.Context, claim core.OrderClaim) error {
	if claim.Key.IsZero() {
		return fmt.Errorf("sqlstore: claim order key is required")
	}
	createdAt := claim.CreatedAt.UTC()
	if claim.CreatedAt.IsZero() {
		createdAt = s.now()
	}
	record := &orderClaimRecord{
		ExternalSource:  claim.Key.ExternalSource,
		ExternalOrderID: claim.Key.ExternalOrderID,
		Outcome:         string(claim.Outcome),
		EntrantID:       strings.TrimSpace(claim.EntrantID),
		CreatedAt:       createdAt,
	}
	if _, err := s.tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", core.ErrDuplicateOrder, claim.Key)
		}
		return err
	}
	return nil
}

func (s *OrderClaimStore) Get(ctx context.Context, key core.OrderKey) (core.OrderClaim, bool, error) {
	record := &orderClaimRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_source = ?", key.ExternalSource).
		Where("?TableAlias.external_order_id = ?", key.ExternalOrderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.OrderClaim{}, false, nil
		}
		return core.OrderClaim{}, false, err
	}
	return record.toDomain(), true, nil
}
