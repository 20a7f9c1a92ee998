package core

import (
	"context"
	"fmt"
	"strings"
)

// CreditLedger issues entry credits and records the matching outbox event in
// the same unit of work.
type CreditLedger struct {
	credits EntryCreditStore
	outbox  EventEnqueuer
}

func NewCreditLedger(credits EntryCreditStore, outbox EventEnqueuer) *CreditLedger {
	return &CreditLedger{credits: credits, outbox: outbox}
}

func (l *CreditLedger) Issue(ctx context.Context, in IssueCreditInput) (EntryCredit, error) {
	if l == nil || l.credits == nil {
		return EntryCredit{}, fmt.Errorf("core: credit ledger is not configured")
	}
	if strings.TrimSpace(in.Entrant.ID) == "" {
		return EntryCredit{}, fmt.Errorf("core: entrant id is required to issue credits")
	}
	if in.Quantity <= 0 {
		return EntryCredit{}, fmt.Errorf("core: credit quantity must be positive")
	}
	if in.Key.IsZero() {
		return EntryCredit{}, fmt.Errorf("core: order key is required to issue credits")
	}

	credit, err := l.credits.Create(ctx, in)
	if err != nil {
		return EntryCredit{}, err
	}
	if l.outbox != nil {
		if err := l.outbox.Enqueue(ctx, entryCreditAddedEvent(in.Entrant, credit)); err != nil {
			return EntryCredit{}, err
		}
	}
	return credit, nil
}

func (l *CreditLedger) CreditsByEntrant(ctx context.Context, entrantID string) ([]EntryCredit, error) {
	if l == nil || l.credits == nil {
		return nil, fmt.Errorf("core: credit ledger is not configured")
	}
	return l.credits.ListByEntrant(ctx, strings.TrimSpace(entrantID))
}
