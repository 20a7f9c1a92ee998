package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-entry-credits/core"
	"github.com/uptrace/bun"
)

type entrantRecord struct {
	bun.BaseModel `bun:"table:entrants,alias:en"`

	ID                   string    `bun:"id,pk"`
	Email                string    `bun:"email,notnull"`
	Name                 string    `bun:"name,notnull"`
	Phone                string    `bun:"phone,notnull"`
	AddressLine1         string    `bun:"address_line1,notnull"`
	AddressLine2         string    `bun:"address_line2,notnull"`
	AddressCity          string    `bun:"address_city,notnull"`
	AddressStateProvince string    `bun:"address_state_province,notnull"`
	AddressPostalCode    string    `bun:"address_postal_code,notnull"`
	AddressCountry       string    `bun:"address_country,notnull"`
	LockVersion          int       `bun:"lock_version,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newEntrantRecord(id string, in core.CreateEntrantInput, now time.Time) *entrantRecord {
	record := &entrantRecord{
		ID:        id,
		Email:     core.NormalizeEmail(in.Email),
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Address != nil {
		record.AddressLine1 = strings.TrimSpace(in.Address.Line1)
		record.AddressLine2 = strings.TrimSpace(in.Address.Line2)
		record.AddressCity = strings.TrimSpace(in.Address.City)
		record.AddressStateProvince = strings.TrimSpace(in.Address.StateProvince)
		record.AddressPostalCode = strings.TrimSpace(in.Address.PostalCode)
		record.AddressCountry = strings.TrimSpace(in.Address.Country)
	}
	return record
}

func (r entrantRecord) toDomain() core.Entrant {
	entrant := core.Entrant{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Phone:     r.Phone,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	address := core.Address{
		Line1:         r.AddressLine1,
		Line2:         r.AddressLine2,
		City:          r.AddressCity,
		StateProvince: r.AddressStateProvince,
		PostalCode:    r.AddressPostalCode,
		Country:       r.AddressCountry,
	}
	if address != (core.Address{}) {
		entrant.Address = &address
	}
	return entrant
}

type competitionRecord struct {
	bun.BaseModel `bun:"table:competitions,alias:cmp"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id,notnull"`
	Type      string    `bun:"type,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r competitionRecord) toDomain() core.Competition {
	return core.Competition{
		ID:      r.ID,
		EventID: r.EventID,
		Type:    r.Type,
		Name:    r.Name,
	}
}

type entryCreditRecord struct {
	bun.BaseModel `bun:"table:entry_credits,alias:ec"`

	ID              string    `bun:"id,pk"`
	EntrantID       string    `bun:"entrant_id,notnull"`
	CompetitionID   string    `bun:"competition_id,notnull"`
	Quantity        int       `bun:"quantity,notnull"`
	UsedCount       int       `bun:"used_count,notnull"`
	ExternalOrderID string    `bun:"external_order_id,notnull"`
	ExternalSource  string    `bun:"external_source,notnull"`
	Status          string    `bun:"status,notnull"`
	PurchasedAt     time.Time `bun:"purchased_at,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r entryCreditRecord) toDomain() core.EntryCredit {
	return core.EntryCredit{
		ID:              r.ID,
		EntrantID:       r.EntrantID,
		CompetitionID:   r.CompetitionID,
		Quantity:        r.Quantity,
		UsedCount:       r.UsedCount,
		ExternalOrderID: r.ExternalOrderID,
		ExternalSource:  r.ExternalSource,
		Status:          core.CreditStatus(r.Status),
		PurchasedAt:     r.PurchasedAt.UTC(),
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type pendingOrderRecord struct {
	bun.BaseModel `bun:"table:pending_orders,alias:po"`

	ID              string     `bun:"id,pk"`
	ExternalOrderID string     `bun:"external_order_id,notnull"`
	ExternalSource  string     `bun:"external_source,notnull"`
	CompetitionID   string     `bun:"competition_id,notnull"`
	EntrantID       string     `bun:"entrant_id,notnull"`
	RawPayload      string     `bun:"raw_payload,notnull"`
	Reason          string     `bun:"reason,notnull"`
	Status          string     `bun:"status,notnull"`
	ResolvedBy      string     `bun:"resolved_by,notnull"`
	ResolutionNotes string     `bun:"resolution_notes,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt      *time.Time `bun:"resolved_at,nullzero"`
}

func (r pendingOrderRecord) toDomain() core.PendingOrder {
	order := core.PendingOrder{
		ID:              r.ID,
		ExternalOrderID: r.ExternalOrderID,
		ExternalSource:  r.ExternalSource,
		CompetitionID:   r.CompetitionID,
		EntrantID:       r.EntrantID,
		RawPayload:      []byte(r.RawPayload),
		Reason:          core.ReviewReason(r.Reason),
		Status:          core.PendingOrderStatus(r.Status),
		ResolvedBy:      r.ResolvedBy,
		ResolutionNotes: r.ResolutionNotes,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.ResolvedAt != nil {
		resolvedAt := r.ResolvedAt.UTC()
		order.ResolvedAt = &resolvedAt
	}
	return order
}

type orderClaimRecord struct {
	bun.BaseModel `bun:"table:order_claims,alias:oc"`

	ExternalSource  string    `bun:"external_source,pk"`
	ExternalOrderID string    `bun:"external_order_id,pk"`
	Outcome         string    `bun:"outcome,notnull"`
	EntrantID       string    `bun:"entrant_id,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r orderClaimRecord) toDomain() core.OrderClaim {
	return core.OrderClaim{
		Key:       core.NewOrderKey(r.ExternalSource, r.ExternalOrderID),
		Outcome:   core.ClaimOutcome(r.Outcome),
		EntrantID: r.EntrantID,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type outboxRecord struct {
	bun.BaseModel `bun:"table:entry_credit_outbox,alias:eco"`

	ID            string         `bun:"id,pk"`
	EventID       string         `bun:"event_id,notnull"`
	EventName     string         `bun:"event_name,notnull"`
	AggregateType string         `bun:"aggregate_type,notnull"`
	AggregateID   string         `bun:"aggregate_id,notnull"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError     string         `bun:"last_error"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
