package postgres

import (
	"context"
	"errors"
	"fmt"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Ensure interface compliance
var (
	_ repository.RedemptionStore = (*PostgresRedemptionStore)(nil)
	_ repository.RecordInserter  = (*PostgresRedemptionStore)(nil)
)

// SQLSTATE for a missing relation; a fresh database reads as empty.
const undefinedTable = "42P01"

type PostgresRedemptionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRedemptionStore(pool *pgxpool.Pool) *PostgresRedemptionStore {
	return &PostgresRedemptionStore{pool: pool}
}

func (s *PostgresRedemptionStore) Backend() string { return "postgres" }

func (s *PostgresRedemptionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (s *PostgresRedemptionStore) Load(ctx context.Context) (model.RedemptionSet, error) {
	const sql = `
SELECT code, email, redeemed_at, campaign, website, first_name, last_name, phone, metadata
  FROM redemptions;
`
	set := model.NewRedemptionSet()
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return set, nil
		}
		return set, fmt.Errorf("%w: Load redemptions: %v", domain.ErrStoreDegraded, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r    model.RedemptionRecord
			meta []byte
		)
		if err := rows.Scan(&r.Code, &r.Email, &r.Timestamp, &r.Campaign, &r.Website,
			&r.FirstName, &r.LastName, &r.Phone, &meta); err != nil {
			return model.NewRedemptionSet(), fmt.Errorf("%w: scan redemption: %v", domain.ErrStoreDegraded, err)
		}
		if len(meta) > 0 && string(meta) != "{}" {
			if err := r.UnmarshalMetadata(meta); err != nil {
				return model.NewRedemptionSet(), fmt.Errorf("%w: metadata of %s: %v", domain.ErrStoreDegraded, r.Code, err)
			}
		}
		r.Timestamp = r.Timestamp.UTC()
		set[r.Code] = &r
	}
	if err := rows.Err(); err != nil {
		return model.NewRedemptionSet(), fmt.Errorf("%w: Load redemptions: %v", domain.ErrStoreDegraded, err)
	}
	return set, nil
}

const insertSQL = `
INSERT INTO redemptions (code, email, redeemed_at, campaign, website, first_name, last_name, phone, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
ON CONFLICT (code) DO NOTHING;
`

// Save replaces the table contents with set in one transaction.
func (s *PostgresRedemptionStore) Save(ctx context.Context, set model.RedemptionSet) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM redemptions;`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, code := range set.Codes() {
			rec := set[code]
			if rec == nil {
				continue
			}
			args, err := insertArgs(code, rec)
			if err != nil {
				return err
			}
			batch.Queue(insertSQL, args...)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: Save redemptions: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Insert adds rec unless its code exists; false means the code was taken.
func (s *PostgresRedemptionStore) Insert(ctx context.Context, rec *model.RedemptionRecord) (bool, error) {
	args, err := insertArgs(rec.Code, rec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	tag, err := s.pool.Exec(ctx, insertSQL, args...)
	if err != nil {
		return false, fmt.Errorf("%w: Insert redemption: %v", domain.ErrPersistence, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresRedemptionStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err // rollback in defer
	}
	return tx.Commit(ctx)
}

func insertArgs(code string, r *model.RedemptionRecord) ([]interface{}, error) {
	meta := []byte("{}")
	if len(r.Metadata) > 0 || len(r.RawMetadata) > 0 {
		var err error
		if meta, err = r.MarshalMetadata(); err != nil {
			return nil, fmt.Errorf("metadata of %s: %w", code, err)
		}
	}
	return []interface{}{
		code, r.Email, r.Timestamp.UTC(), r.Campaign, r.Website,
		r.FirstName, r.LastName, r.Phone, string(meta),
	}, nil
}
