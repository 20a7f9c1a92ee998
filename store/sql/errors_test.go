package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-entry-credits/core"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres unique", err: &pq.Error{Code: "23505"}, want: true},
		{name: "postgres other", err: &pq.Error{Code: "23503"}, want: false},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: true},
		{name: "sqlite primary key", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, want: true},
		{name: "wrapped message", err: fmt.Errorf("insert: %w", errors.New("UNIQUE constraint failed: entrants.email")), want: true},
		{name: "unrelated", err: errors.New("no such table"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestClassifyTxError_WrapsContentionAsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "postgres serialization", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "postgres deadlock", err: &pq.Error{Code: "40P01"}, transient: true},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, transient: true},
		{name: "locked message", err: errors.New("database is locked"), transient: true},
		{name: "already transient", err: fmt.Errorf("%w: retry", core.ErrTransient), transient: true},
		{name: "domain error", err: core.ErrCompetitionNotFound, transient: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyTxError(tc.err)
			if errors.Is(got, core.ErrTransient) != tc.transient {
				t.Fatalf("expected transient=%v, got %v", tc.transient, got)
			}
		})
	}
	if classifyTxError(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
