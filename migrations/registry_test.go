package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	entrycredits "github.com/goliatone/go-entry-credits"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	found := map[string]bool{}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		found[entry.Dialect] = true
	}
	if !found[DialectPostgres] || !found[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite filesystems, got %v", found)
	}
}

func TestRegister_UsesValidationTargetsAndLabel(t *testing.T) {
	var calls []string
	var labels []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected single sqlite registration, got %v", calls)
	}
	if labels[0] != DefaultSourceLabel || reg.SourceLabel != DefaultSourceLabel {
		t.Fatalf("expected default source label, got %q", labels[0])
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestForDialect(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite", "sqlite3", " SQLite "} {
		fsys, err := ForDialect(dialect)
		if err != nil {
			t.Fatalf("for dialect %q: %v", dialect, err)
		}
		if _, err := fs.ReadFile(fsys, "0001_entry_credits.up.sql"); err != nil {
			t.Fatalf("read %q schema: %v", dialect, err)
		}
	}
	if _, err := ForDialect("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect to fail")
	}
}

func TestStatements_SplitsOnMarkers(t *testing.T) {
	got := Statements("CREATE TABLE a (id TEXT);\n\n--bun:split\n\n  \n--bun:split\nCREATE INDEX b ON a (id);\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(got), got)
	}
	if !strings.HasPrefix(got[1], "CREATE INDEX") {
		t.Fatalf("unexpected second statement %q", got[1])
	}
}

func TestSQLiteSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-entry-credits?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	root := entrycredits.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "0001_entry_credits.up.sql"); err != nil {
		t.Fatalf("apply up: %v", err)
	}
	for _, table := range []string{"entrants", "competitions", "entry_credits", "pending_orders", "order_claims", "entry_credit_outbox"} {
		if !tableExists(t, db, table) {
			t.Fatalf("expected table %s after up migration", table)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO entrants (id, email) VALUES (?, ?)`, "e-1", "a@x.com"); err != nil {
		t.Fatalf("insert entrant: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO entrants (id, email) VALUES (?, ?)`, "e-2", "a@x.com"); err == nil {
		t.Fatalf("expected unique email constraint")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO competitions (id, event_id, type) VALUES (?, ?, ?)`, "c-1", "event-2024", "HOME"); err != nil {
		t.Fatalf("insert competition: %v", err)
	}
	insertCredit := `INSERT INTO entry_credits (id, entrant_id, competition_id, quantity, external_order_id, external_source, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertCredit, "cr-1", "e-1", "c-1", 2, "O-1", "shop", "2024-05-01T10:00:00Z"); err != nil {
		t.Fatalf("insert credit: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertCredit, "cr-2", "e-1", "c-1", 1, "O-1", "shop", "2024-05-01T10:00:00Z"); err == nil {
		t.Fatalf("expected unique order key constraint")
	}
	if _, err := db.ExecContext(ctx, insertCredit, "cr-3", "e-1", "c-1", 0, "O-2", "shop", "2024-05-01T10:00:00Z"); err == nil {
		t.Fatalf("expected positive quantity check")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "0001_entry_credits.down.sql"); err != nil {
		t.Fatalf("apply down: %v", err)
	}
	if tableExists(t, db, "entrants") || tableExists(t, db, "entry_credit_outbox") {
		t.Fatalf("expected tables to be dropped after down migration")
	}
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count); err != nil {
		t.Fatalf("inspect sqlite_master: %v", err)
	}
	return count == 1
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return err
	}
	for _, statement := range Statements(string(content)) {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
