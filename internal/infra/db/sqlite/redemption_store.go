// Package sqlite stores redemptions in an embedded SQLite database through
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"

	_ "modernc.org/sqlite"
)

var (
	_ repository.RedemptionStore = (*Store)(nil)
	_ repository.RecordInserter  = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS redemptions (
    code        TEXT PRIMARY KEY,
    email       TEXT NOT NULL,
    redeemed_at TEXT NOT NULL,
    campaign    TEXT NOT NULL,
    website     TEXT NOT NULL DEFAULT '',
    first_name  TEXT NOT NULL DEFAULT '',
    last_name   TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS redemptions_campaign_email_idx ON redemptions (campaign, email COLLATE NOCASE);
`

const insertSQL = `
INSERT INTO redemptions (code, email, redeemed_at, campaign, website, first_name, last_name, phone, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO NOTHING`

type Store struct {
	db *sql.DB
}

// Open creates the database file and its directory when missing, switches
// to WAL and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; readers still work under WAL.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Backend() string { return "sqlite" }

func (s *Store) Load(ctx context.Context) (model.RedemptionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT code, email, redeemed_at, campaign, website, first_name, last_name, phone, metadata
  FROM redemptions`)
	if err != nil {
		return model.NewRedemptionSet(), fmt.Errorf("%w: sqlite load: %v", domain.ErrStoreDegraded, err)
	}
	defer rows.Close()

	set := model.NewRedemptionSet()
	for rows.Next() {
		var (
			r        model.RedemptionRecord
			ts, meta string
		)
		if err := rows.Scan(&r.Code, &r.Email, &ts, &r.Campaign, &r.Website,
			&r.FirstName, &r.LastName, &r.Phone, &meta); err != nil {
			return model.NewRedemptionSet(), fmt.Errorf("%w: sqlite scan: %v", domain.ErrStoreDegraded, err)
		}
		if ts != "" {
			if r.Timestamp, err = time.Parse(model.TimestampLayout, ts); err != nil {
				return model.NewRedemptionSet(), fmt.Errorf("%w: timestamp of %s: %v", domain.ErrStoreDegraded, r.Code, err)
			}
			r.Timestamp = r.Timestamp.UTC()
		}
		if meta != "" && meta != "{}" {
			if err := r.UnmarshalMetadata([]byte(meta)); err != nil {
				return model.NewRedemptionSet(), fmt.Errorf("%w: metadata of %s: %v", domain.ErrStoreDegraded, r.Code, err)
			}
		}
		set[r.Code] = &r
	}
	if err := rows.Err(); err != nil {
		return model.NewRedemptionSet(), fmt.Errorf("%w: sqlite load: %v", domain.ErrStoreDegraded, err)
	}
	return set, nil
}

// Save replaces every row with set in one transaction.
func (s *Store) Save(ctx context.Context, set model.RedemptionSet) error {
	if err := s.replace(ctx, set); err != nil {
		return fmt.Errorf("%w: sqlite save: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, set model.RedemptionSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM redemptions`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, code := range set.Codes() {
		rec := set[code]
		if rec == nil {
			continue
		}
		args, err := insertArgs(code, rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Insert(ctx context.Context, rec *model.RedemptionRecord) (bool, error) {
	args, err := insertArgs(rec.Code, rec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	res, err := s.db.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		return false, fmt.Errorf("%w: sqlite insert: %v", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: sqlite insert: %v", domain.ErrPersistence, err)
	}
	return n == 1, nil
}

func insertArgs(code string, r *model.RedemptionRecord) ([]any, error) {
	meta := "{}"
	if len(r.Metadata) > 0 || len(r.RawMetadata) > 0 {
		b, err := r.MarshalMetadata()
		if err != nil {
			return nil, fmt.Errorf("metadata of %s: %w", code, err)
		}
		meta = string(b)
	}
	return []any{code, r.Email, r.TimestampString(), r.Campaign, r.Website,
		r.FirstName, r.LastName, r.Phone, meta}, nil
}
