package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

func normalizeCompetitionID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

type txCompetitionCatalog struct {
	tx bun.Tx
}

func (c txCompetitionCatalog) GetCompetition(ctx context.Context, id string) (core.Competition, error) {
	record := &competitionRecord{}
	err := c.tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", normalizeCompetitionID(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Competition{}, fmt.Errorf("%w: %s", core.ErrCompetitionNotFound, id)
		}
		return core.Competition{}, err
	}
	return record.toDomain(), nil
}

// CompetitionStore maintains the competition catalog outside of ingestion.
type CompetitionStore struct {
	db    *bun.DB
	repo  repository.Repository[*competitionRecord]
	cache repositorycache.CacheService
}

func NewCompetitionStore(db *bun.DB, cacheService repositorycache.CacheService) (*CompetitionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*competitionRecord](db, competitionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid competition repository wiring: %w", err)
		}
	}
	return &CompetitionStore{db: db, repo: repo, cache: cacheService}, nil
}

// Upsert inserts or replaces a competition and evicts its cached copy.
func (s *CompetitionStore) Upsert(ctx context.Context, competition core.Competition) (core.Competition, error) {
	if s == nil || s.db == nil {
		return core.Competition{}, fmt.Errorf("sqlstore: competition store is not configured")
	}
	id := normalizeCompetitionID(competition.ID)
	if parseUUID(id).String() != id {
		return core.Competition{}, fmt.Errorf("sqlstore: competition id %q must be a UUID", competition.ID)
	}
	if strings.TrimSpace(competition.EventID) == "" || strings.TrimSpace(competition.Type) == "" {
		return core.Competition{}, fmt.Errorf("sqlstore: competition event id and type are required")
	}
	now := time.Now().UTC()
	record := &competitionRecord{
		ID:        id,
		EventID:   strings.TrimSpace(competition.EventID),
		Type:      strings.TrimSpace(competition.Type),
		Name:      strings.TrimSpace(competition.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("event_id = EXCLUDED.event_id").
		Set("type = EXCLUDED.type").
		Set("name = EXCLUDED.name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Competition{}, err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, CompetitionCacheKey(id)); err != nil {
			return core.Competition{}, err
		}
	}
	return record.toDomain(), nil
}

func (s *CompetitionStore) Get(ctx context.Context, id string) (core.Competition, error) {
	if s == nil || s.repo == nil {
		return core.Competition{}, fmt.Errorf("sqlstore: competition store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", normalizeCompetitionID(id)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Competition{}, err
	}
	if len(records) == 0 {
		return core.Competition{}, fmt.Errorf("%w: %s", core.ErrCompetitionNotFound, id)
	}
	return records[0].toDomain(), nil
}

// ListByEvent lists every competition, or only those of eventID when set.
func (s *CompetitionStore) ListByEvent(ctx context.Context, eventID string) ([]core.Competition, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: competition store is not configured")
	}
	selectors := []repository.SelectCriteria{repository.OrderBy("created_at ASC")}
	if trimmed := strings.TrimSpace(eventID); trimmed != "" {
		selectors = append(selectors, repository.SelectBy("event_id", "=", trimmed))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Competition, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
