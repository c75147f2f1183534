package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/sheet"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SHEET_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SHEET_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)

	applied, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected migrations to be applied")
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply up migrations (idempotent pass): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no migrations on second pass, got %v", again)
	}

	if err := applyDownMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop()); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestPostgresPersisterBacksStore(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	persister := NewPostgresPersister(db, "")
	if _, err := persister.Load(ctx); err != sheet.ErrNoState {
		t.Fatalf("Load() on empty table error = %v, want ErrNoState", err)
	}

	st, err := sheet.Open(ctx, persister)
	if err != nil {
		t.Fatalf("sheet.Open() error = %v", err)
	}
	topic, err := st.CreateTopic(ctx, sheet.TopicInput{Name: "Arrays"})
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	reopened, err := sheet.Open(ctx, NewPostgresPersister(db, DefaultSlot))
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got := reopened.Sheet()
	if len(got.Topics) != 1 || got.Topics[0].ID != topic.ID {
		t.Fatalf("unexpected topics after reopen: %+v", got.Topics)
	}

	revisions, err := persister.Revisions(ctx, 10)
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revisions) != 2 || revisions[0].Number != 2 {
		t.Fatalf("unexpected revisions: %+v", revisions)
	}

	if _, err := db.ExecContext(ctx, `UPDATE sheet_revisions SET document = '{}'::jsonb`); err == nil {
		t.Fatal("expected revisions to reject updates")
	}
}

func applyDownMigrations(ctx context.Context, db *sql.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	var downs []string
	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			downs = append(downs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, name := range downs {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if sqlText := strings.TrimSpace(string(sqlBytes)); sqlText != "" {
			if _, err := db.ExecContext(ctx, sqlText); err != nil {
				return err
			}
		}
	}
	return nil
}
