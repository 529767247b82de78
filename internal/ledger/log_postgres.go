package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresLog persists the simulator's commitment log so Replay survives
// restarts. One row per committed operation, keyed by tx hash.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, c Committed) error {
	payload, err := json.Marshal(c.Op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	query := `
		INSERT INTO commit_log (tx_hash, block_number, namespace, ledger_id, committed_at, operation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	_, err = l.db.ExecContext(ctx, query,
		c.Receipt.TxHash,
		c.Receipt.BlockNumber,
		c.Op.Namespace,
		c.Op.LedgerID,
		c.Receipt.CommittedAt,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert commit log entry: %w", err)
	}
	return nil
}

func (l *PostgresLog) Range(ctx context.Context, namespace string, from, to int64) ([]Committed, error) {
	query := `
		SELECT tx_hash, block_number, ledger_id, committed_at, operation
		FROM commit_log
		WHERE namespace = $1 AND ledger_id BETWEEN $2 AND $3
		ORDER BY committed_at, tx_hash
	`
	rows, err := l.db.QueryContext(ctx, query, namespace, from, to)
	if err != nil {
		return nil, fmt.Errorf("query commit log: %w", err)
	}
	defer rows.Close()

	var out []Committed
	for rows.Next() {
		var (
			c       Committed
			payload []byte
		)
		if err := rows.Scan(&c.Receipt.TxHash, &c.Receipt.BlockNumber, &c.Receipt.LedgerID, &c.Receipt.CommittedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan commit log entry: %w", err)
		}
		if err := json.Unmarshal(payload, &c.Op); err != nil {
			return nil, fmt.Errorf("unmarshal operation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
