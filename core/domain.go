package core

import (
	"strings"
	"time"
)

type CreditStatus string

const (
	CreditStatusActive CreditStatus = "ACTIVE"
)

type PendingOrderStatus string

const (
	PendingOrderStatusNeedsReview PendingOrderStatus = "NEEDS_REVIEW"
	PendingOrderStatusResolved    PendingOrderStatus = "RESOLVED"
	PendingOrderStatusCancelled   PendingOrderStatus = "CANCELLED"
)

// Terminal reports whether the status forbids further transitions.
func (s PendingOrderStatus) Terminal() bool {
	return s == PendingOrderStatusResolved || s == PendingOrderStatusCancelled
}

func (s PendingOrderStatus) Valid() bool {
	switch s {
	case PendingOrderStatusNeedsReview, PendingOrderStatusResolved, PendingOrderStatusCancelled:
		return true
	default:
		return false
	}
}

type ReviewReason string

const (
	ReviewReasonCompetitionExclusivity ReviewReason = "COMPETITION_EXCLUSIVITY"
)

var reviewExplanations = map[ReviewReason]string{
	ReviewReasonCompetitionExclusivity: "Entrant already holds entry credits for a different competition type in the same event; the order was queued for manual review.",
}

const defaultReviewExplanation = "The order was queued for manual review."

// ExplainReviewReason maps a reason code to the fixed user-facing explanation.
func ExplainReviewReason(reason ReviewReason) string {
	if explanation, ok := reviewExplanations[reason]; ok {
		return explanation
	}
	return defaultReviewExplanation
}

type IngestOutcome string

const (
	IngestOutcomeProcessed        IngestOutcome = "PROCESSED"
	IngestOutcomeAlreadyProcessed IngestOutcome = "ALREADY_PROCESSED"
	IngestOutcomePendingReview    IngestOutcome = "PENDING_REVIEW"
)

type ClaimOutcome string

const (
	ClaimOutcomeCredited        ClaimOutcome = "CREDITED"
	ClaimOutcomeQueuedForReview ClaimOutcome = "QUEUED_FOR_REVIEW"
)

// OrderKey identifies an order across deliveries.
type OrderKey struct {
	ExternalSource  string
	ExternalOrderID string
}

func NewOrderKey(source, orderID string) OrderKey {
	return OrderKey{
		ExternalSource:  strings.TrimSpace(source),
		ExternalOrderID: strings.TrimSpace(orderID),
	}
}

func (k OrderKey) String() string {
	return k.ExternalSource + "/" + k.ExternalOrderID
}

func (k OrderKey) IsZero() bool {
	return k.ExternalSource == "" || k.ExternalOrderID == ""
}

type Address struct {
	Line1         string `json:"line1,omitempty"`
	Line2         string `json:"line2,omitempty"`
	City          string `json:"city,omitempty"`
	StateProvince string `json:"stateProvince,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country,omitempty"`
}

type Customer struct {
	Email   string
	Name    string
	Phone   string
	Address *Address
}

// OrderNotification is a parsed and validated webhook delivery. RawPayload
// carries the verbatim request body.
type OrderNotification struct {
	ExternalOrderID string
	ExternalSource  string
	CompetitionID   string
	Quantity        int
	PurchasedAt     time.Time
	Customer        Customer
	RawPayload      []byte
}

func (o OrderNotification) Key() OrderKey {
	return NewOrderKey(o.ExternalSource, o.ExternalOrderID)
}

type Entrant struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Address   *Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Competition struct {
	ID      string
	EventID string
	Type    string
	Name    string
}

type EntryCredit struct {
	ID              string
	EntrantID       string
	CompetitionID   string
	Quantity        int
	UsedCount       int
	ExternalOrderID string
	ExternalSource  string
	Status          CreditStatus
	PurchasedAt     time.Time
	CreatedAt       time.Time
}

func (c EntryCredit) AvailableCredits() int {
	available := c.Quantity - c.UsedCount
	if available < 0 {
		return 0
	}
	return available
}

func (c EntryCredit) Key() OrderKey {
	return NewOrderKey(c.ExternalSource, c.ExternalOrderID)
}

type PendingOrder struct {
	ID              string
	ExternalOrderID string
	ExternalSource  string
	CompetitionID   string
	EntrantID       string
	RawPayload      []byte
	Reason          ReviewReason
	Status          PendingOrderStatus
	ResolvedBy      string
	ResolutionNotes string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

func (p PendingOrder) Key() OrderKey {
	return NewOrderKey(p.ExternalSource, p.ExternalOrderID)
}

func (p PendingOrder) Explanation() string {
	return ExplainReviewReason(p.Reason)
}

type OrderClaim struct {
	Key       OrderKey
	Outcome   ClaimOutcome
	EntrantID string
	CreatedAt time.Time
}

// IngestResult is the outcome of one ingestion. CreditsAdded is zero unless
// the outcome is PROCESSED.
type IngestResult struct {
	Outcome        IngestOutcome
	EntrantID      string
	CreditsAdded   int
	Explanation    string
	CreditID       string
	PendingOrderID string
}

func Processed(entrantID string, credit EntryCredit) IngestResult {
	return IngestResult{
		Outcome:      IngestOutcomeProcessed,
		EntrantID:    entrantID,
		CreditsAdded: credit.Quantity,
		CreditID:     credit.ID,
	}
}

func AlreadyProcessed(entrantID string) IngestResult {
	return IngestResult{
		Outcome:   IngestOutcomeAlreadyProcessed,
		EntrantID: entrantID,
	}
}

func PendingReview(entrantID string, order PendingOrder) IngestResult {
	return IngestResult{
		Outcome:        IngestOutcomePendingReview,
		EntrantID:      entrantID,
		Explanation:    order.Explanation(),
		PendingOrderID: order.ID,
	}
}

type CreateEntrantInput struct {
	Email   string
	Name    string
	Phone   string
	Address *Address
}

type IssueCreditInput struct {
	Entrant       Entrant
	CompetitionID string
	Quantity      int
	Key           OrderKey
	PurchasedAt   time.Time
}

type CreatePendingOrderInput struct {
	Key           OrderKey
	CompetitionID string
	EntrantID     string
	RawPayload    []byte
	Reason        ReviewReason
}

type ReviewDecision struct {
	PendingOrderID string
	Actor          string
	Notes          string
}

type PendingOrderFilter struct {
	// Status filters by status; empty lists every pending order.
	Status PendingOrderStatus
}

// NormalizeEmail returns the canonical form used for entrant lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
