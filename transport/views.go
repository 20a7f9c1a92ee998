package transport

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-entry-credits/core"
)

type pendingOrderView struct {
	ID              string          `json:"id"`
	ExternalOrderID string          `json:"externalOrderId"`
	ExternalSource  string          `json:"externalSource"`
	CompetitionID   string          `json:"competitionId"`
	EntrantID       string          `json:"entrantId"`
	Reason          string          `json:"reason"`
	Explanation     string          `json:"explanation"`
	Status          string          `json:"status"`
	ResolvedBy      string          `json:"resolvedBy,omitempty"`
	ResolutionNotes string          `json:"resolutionNotes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
}

func newPendingOrderView(order core.PendingOrder) pendingOrderView {
	view := pendingOrderView{
		ID:              order.ID,
		ExternalOrderID: order.ExternalOrderID,
		ExternalSource:  order.ExternalSource,
		CompetitionID:   order.CompetitionID,
		EntrantID:       order.EntrantID,
		Reason:          string(order.Reason),
		Explanation:     order.Explanation(),
		Status:          string(order.Status),
		ResolvedBy:      order.ResolvedBy,
		ResolutionNotes: order.ResolutionNotes,
		CreatedAt:       order.CreatedAt,
		ResolvedAt:      order.ResolvedAt,
	}
	if json.Valid(order.RawPayload) {
		view.RawPayload = json.RawMessage(order.RawPayload)
	}
	return view
}

func newPendingOrderViews(orders []core.PendingOrder) []pendingOrderView {
	out := make([]pendingOrderView, 0, len(orders))
	for _, order := range orders {
		out = append(out, newPendingOrderView(order))
	}
	return out
}

type creditView struct {
	ID              string    `json:"id"`
	CompetitionID   string    `json:"competitionId"`
	Quantity        int       `json:"quantity"`
	UsedCount       int       `json:"usedCount"`
	Available       int       `json:"available"`
	ExternalOrderID string    `json:"externalOrderId"`
	ExternalSource  string    `json:"externalSource"`
	Status          string    `json:"status"`
	PurchasedAt     time.Time `json:"purchasedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

type entrantCreditsView struct {
	EntrantID        string       `json:"entrantId"`
	AvailableCredits int          `json:"availableCredits"`
	Credits          []creditView `json:"credits"`
}

func newEntrantCreditsView(entrantID string, credits []core.EntryCredit) entrantCreditsView {
	view := entrantCreditsView{EntrantID: entrantID, Credits: make([]creditView, 0, len(credits))}
	for _, credit := range credits {
		view.AvailableCredits += credit.AvailableCredits()
		view.Credits = append(view.Credits, creditView{
			ID:              credit.ID,
			CompetitionID:   credit.CompetitionID,
			Quantity:        credit.Quantity,
			UsedCount:       credit.UsedCount,
			Available:       credit.AvailableCredits(),
			ExternalOrderID: credit.ExternalOrderID,
			ExternalSource:  credit.ExternalSource,
			Status:          string(credit.Status),
			PurchasedAt:     credit.PurchasedAt,
			CreatedAt:       credit.CreatedAt,
		})
	}
	return view
}
