package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sheettracker/api/internal/sheet"
)

// DefaultSlot names the row used when a deployment keeps a single sheet.
const DefaultSlot = "default"

// Revision is one saved version of a sheet slot.
type Revision struct {
	Number  int64     `json:"revision"`
	SavedAt time.Time `json:"savedAt"`
}

// PostgresPersister keeps the whole canonical document in one JSONB row per
// slot and appends every save to sheet_revisions.
type PostgresPersister struct {
	db   *sql.DB
	slot string
}

func NewPostgresPersister(db *sql.DB, slot string) *PostgresPersister {
	if slot == "" {
		slot = DefaultSlot
	}
	return &PostgresPersister{db: db, slot: slot}
}

func (p *PostgresPersister) Load(ctx context.Context) ([]byte, error) {
	var document []byte
	err := p.db.QueryRowContext(ctx, `SELECT document FROM sheet_documents WHERE slot=$1`, p.slot).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sheet.ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load sheet %s: %w", p.slot, err)
	}
	return document, nil
}

func (p *PostgresPersister) Save(ctx context.Context, data []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var revision int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sheet_documents (slot, document)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (slot) DO UPDATE
		SET document = EXCLUDED.document,
		    revision = sheet_documents.revision + 1,
		    updated_at = NOW()
		RETURNING revision
	`, p.slot, string(data)).Scan(&revision)
	if err != nil {
		return fmt.Errorf("upsert sheet %s: %w", p.slot, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sheet_revisions (slot, revision, document)
		VALUES ($1, $2, $3::jsonb)
	`, p.slot, revision, string(data)); err != nil {
		return fmt.Errorf("append revision %d: %w", revision, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// Revisions lists the most recent saves, newest first.
func (p *PostgresPersister) Revisions(ctx context.Context, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT revision, saved_at
		FROM sheet_revisions
		WHERE slot = $1
		ORDER BY revision DESC
		LIMIT $2
	`, p.slot, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	items := make([]Revision, 0, limit)
	for rows.Next() {
		var item Revision
		if err := rows.Scan(&item.Number, &item.SavedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
