package recycling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ecotrace/pkg/sentinel"
)

// PostgresStore persists reports in PostgreSQL. Verification is a
// conditional UPDATE guarded by NOT verified, so two racing regulators
// resolve to exactly one winner.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const reportColumns = `
	ledger_id, device_ledger_id, recycler_wallet, weight_grams, components,
	verified, verified_by, verified_at, tx_refs, created_at
`

func (s *PostgresStore) Create(ctx context.Context, r *Report) error {
	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.LedgerID, r.DeviceLedgerID, r.RecyclerWallet, r.WeightGrams, r.Components,
		r.Verified, r.VerifiedBy, r.VerifiedAt, pq.Array(r.TxRefs), r.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ledgerID int64) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE ledger_id = $1`, ledgerID)
	return scanReport(row)
}

func (s *PostgresStore) ListByRecycler(ctx context.Context, recyclerWallet string) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE recycler_wallet = $1 ORDER BY ledger_id`,
		recyclerWallet)
	if err != nil {
		return nil, fmt.Errorf("list reports by recycler: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkVerified(ctx context.Context, ledgerID int64, regulatorWallet, txHash string, at time.Time) (*Report, error) {
	query := `
		UPDATE reports
		SET verified = TRUE,
		    verified_by = $2,
		    verified_at = $3,
		    tx_refs = array_append(tx_refs, $4)
		WHERE ledger_id = $1 AND NOT verified
	`
	res, err := s.db.ExecContext(ctx, query, ledgerID, regulatorWallet, at, txHash)
	if err != nil {
		return nil, fmt.Errorf("mark report verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM reports WHERE ledger_id = $1)`, ledgerID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check report exists: %w", err)
		}
		if !exists {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrStale
	}
	return s.Get(ctx, ledgerID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		r          Report
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
		txRefs     []string
	)
	err := row.Scan(
		&r.LedgerID, &r.DeviceLedgerID, &r.RecyclerWallet, &r.WeightGrams, &r.Components,
		&r.Verified, &verifiedBy, &verifiedAt, pq.Array(&txRefs), &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		at := verifiedAt.Time
		r.VerifiedAt = &at
	}
	r.TxRefs = txRefs
	return &r, nil
}
