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

// EntrantStore is bound to one open transaction.
type EntrantStore struct {
	tx   bun.Tx
	repo repository.Repository[*entrantRecord]
	now  func() time.Time
}

func (s *EntrantStore) FindByEmail(ctx context.Context, email string) (core.Entrant, bool, error) {
	normalized := core.NormalizeEmail(email)
	if normalized == "" {
		return core.Entrant{}, false, nil
	}
	record := &entrantRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Entrant{}, false, nil
		}
		return core.Entrant{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *EntrantStore) Create(ctx context.Context, in core.CreateEntrantInput) (core.Entrant, error) {
	if core.NormalizeEmail(in.Email) == "" {
		return core.Entrant{}, fmt.Errorf("sqlstore: entrant email is required")
	}
	record := newEntrantRecord(uuid.NewString(), in, s.now())
	inserted, err := s.repo.CreateTx(ctx, s.tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Entrant{}, fmt.Errorf("%w: %s", core.ErrEntrantEmailTaken, record.Email)
		}
		return core.Entrant{}, err
	}
	return inserted.toDomain(), nil
}

func (s *EntrantStore) Get(ctx context.Context, id string) (core.Entrant, error) {
	record := &entrantRecord{}
	err := s.tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Entrant{}, fmt.Errorf("%w: %s", core.ErrEntrantNotFound, id)
		}
		return core.Entrant{}, err
	}
	return record.toDomain(), nil
}

// LockEntrant bumps lock_version so the row stays write-locked until the
// transaction ends.
func (s *EntrantStore) LockEntrant(ctx context.Context, entrantID string) error {
	res, err := s.tx.NewUpdate().
		Model((*entrantRecord)(nil)).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(entrantID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrEntrantNotFound, entrantID)
	}
	return nil
}
