package projection

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresApplyLog persists the applied set. ON CONFLICT DO NOTHING makes
// Record a single atomic insert-or-detect, so two bridge instances racing on
// the same event agree on exactly one winner.
type PostgresApplyLog struct {
	db *sql.DB
}

func NewPostgresApplyLog(db *sql.DB) *PostgresApplyLog {
	return &PostgresApplyLog{db: db}
}

func (l *PostgresApplyLog) Record(ctx context.Context, txHash, namespace string, ledgerID int64) (bool, error) {
	query := `
		INSERT INTO applied_events (tx_hash, namespace, ledger_id, applied_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tx_hash) DO NOTHING
	`
	res, err := l.db.ExecContext(ctx, query, txHash, namespace, ledgerID)
	if err != nil {
		return false, fmt.Errorf("record applied event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("applied event rows affected: %w", err)
	}
	return n == 1, nil
}

func (l *PostgresApplyLog) Remove(ctx context.Context, txHash string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM applied_events WHERE tx_hash = $1`, txHash)
	if err != nil {
		return fmt.Errorf("remove applied event: %w", err)
	}
	return nil
}

func (l *PostgresApplyLog) MaxLedgerID(ctx context.Context, namespace string) (int64, error) {
	var max sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(ledger_id) FROM applied_events WHERE namespace = $1`, namespace,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max applied ledger id: %w", err)
	}
	return max.Int64, nil
}
