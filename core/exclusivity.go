package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExclusivityDecision explains whether a new credit would mix competition
// types inside one event.
type ExclusivityDecision struct {
	Violated           bool
	Reason             ReviewReason
	ConflictingCompID  string
	ConflictingType    string
	EvaluatedCompCount int
}

// ExclusivityEngine enforces that an entrant only holds credits for one
// competition type per event.
type ExclusivityEngine struct {
	credits EntryCreditStore
	catalog CompetitionCatalog
}

func NewExclusivityEngine(credits EntryCreditStore, catalog CompetitionCatalog) *ExclusivityEngine {
	return &ExclusivityEngine{credits: credits, catalog: catalog}
}

// Evaluate must run after the entrant lock is held, otherwise two concurrent
// orders can both observe an empty history.
func (e *ExclusivityEngine) Evaluate(ctx context.Context, entrantID string, target Competition) (ExclusivityDecision, error) {
	if e == nil || e.credits == nil || e.catalog == nil {
		return ExclusivityDecision{}, fmt.Errorf("core: exclusivity engine is not configured")
	}
	entrantID = strings.TrimSpace(entrantID)
	if entrantID == "" {
		return ExclusivityDecision{}, fmt.Errorf("core: entrant id is required")
	}

	competitionIDs, err := e.credits.CompetitionIDsForEntrant(ctx, entrantID)
	if err != nil {
		return ExclusivityDecision{}, err
	}

	decision := ExclusivityDecision{}
	for _, competitionID := range competitionIDs {
		if competitionID == "" || competitionID == target.ID {
			continue
		}
		existing, err := e.catalog.GetCompetition(ctx, competitionID)
		if err != nil {
			if errors.Is(err, ErrCompetitionNotFound) {
				continue
			}
			return ExclusivityDecision{}, err
		}
		decision.EvaluatedCompCount++
		if existing.EventID == target.EventID && !strings.EqualFold(existing.Type, target.Type) {
			decision.Violated = true
			decision.Reason = ReviewReasonCompetitionExclusivity
			decision.ConflictingCompID = existing.ID
			decision.ConflictingType = existing.Type
			return decision, nil
		}
	}
	return decision, nil
}
