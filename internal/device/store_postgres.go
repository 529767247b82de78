package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ecotrace/pkg/sentinel"
)

// PostgresStore persists devices in PostgreSQL. Every guarded mutation is a
// single conditional UPDATE whose WHERE clause carries the expected previous
// state, so racing writers resolve to exactly one winner inside the
// database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const deviceColumns = `
	ledger_id, qr_code, rfid_tag, category, model, serial_number,
	weight_grams, materials, manufacturer_wallet, current_owner_wallet,
	status, ownership_history, tx_refs, recycling_report_id, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, d *Device) error {
	history, err := json.Marshal(d.OwnershipHistory)
	if err != nil {
		return fmt.Errorf("marshal ownership history: %w", err)
	}
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.LedgerID, d.QRCode, d.RFIDTag,
		d.Specification.Category, d.Specification.Model, d.Specification.SerialNumber,
		d.Specification.WeightGrams, pq.Array(d.Specification.Materials),
		d.ManufacturerWallet, d.CurrentOwnerWallet, string(d.Status),
		history, pq.Array(d.TxRefs), nullableID(d.RecyclingReportID),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ledgerID int64) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE ledger_id = $1`, ledgerID)
	return scanDevice(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerWallet string, includeRecycled bool) ([]*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE current_owner_wallet = $1`
	if !includeRecycled {
		query += ` AND status <> 'recycled'`
	}
	query += ` ORDER BY ledger_id`
	rows, err := s.db.QueryContext(ctx, query, ownerWallet)
	if err != nil {
		return nil, fmt.Errorf("list devices by owner: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TransferOwner(ctx context.Context, ledgerID int64, fromWallet, toWallet string, status Status, txHash string, at time.Time) (*Device, error) {
	entry, err := json.Marshal([]OwnershipEntry{{OwnerWallet: toWallet, TransferredAt: at}})
	if err != nil {
		return nil, fmt.Errorf("marshal ownership entry: %w", err)
	}
	query := `
		UPDATE devices
		SET current_owner_wallet = $3,
		    status = $4,
		    ownership_history = ownership_history || $5::jsonb,
		    tx_refs = array_append(tx_refs, $6),
		    updated_at = $7
		WHERE ledger_id = $1 AND current_owner_wallet = $2
	`
	res, err := s.db.ExecContext(ctx, query, ledgerID, fromWallet, toWallet, string(status), entry, txHash, at)
	if err != nil {
		return nil, fmt.Errorf("transfer owner: %w", err)
	}
	if err := s.checkGuard(ctx, res, ledgerID); err != nil {
		return nil, err
	}
	return s.Get(ctx, ledgerID)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, ledgerID int64, fromStatus, toStatus Status, txHash string, at time.Time) (*Device, error) {
	query := `
		UPDATE devices
		SET status = $3,
		    tx_refs = array_append(tx_refs, $4),
		    updated_at = $5
		WHERE ledger_id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query, ledgerID, string(fromStatus), string(toStatus), txHash, at)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := s.checkGuard(ctx, res, ledgerID); err != nil {
		return nil, err
	}
	return s.Get(ctx, ledgerID)
}

func (s *PostgresStore) AttachReport(ctx context.Context, ledgerID, reportID int64, ownerWallet, txHash string, at time.Time) (*Device, error) {
	query := `
		UPDATE devices
		SET status = 'recycled',
		    recycling_report_id = $3,
		    tx_refs = array_append(tx_refs, $4),
		    updated_at = $5
		WHERE ledger_id = $1 AND current_owner_wallet = $2
		  AND status <> 'recycled' AND recycling_report_id IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, ledgerID, ownerWallet, reportID, txHash, at)
	if err != nil {
		return nil, fmt.Errorf("attach report: %w", err)
	}
	if err := s.checkGuard(ctx, res, ledgerID); err != nil {
		return nil, err
	}
	return s.Get(ctx, ledgerID)
}

// checkGuard distinguishes a missing device from a lost conditional update.
func (s *PostgresStore) checkGuard(ctx context.Context, res sql.Result, ledgerID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM devices WHERE ledger_id = $1)`, ledgerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check device exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrStale
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d         Device
		materials []string
		txRefs    []string
		history   []byte
		reportID  sql.NullInt64
	)
	err := row.Scan(
		&d.LedgerID, &d.QRCode, &d.RFIDTag,
		&d.Specification.Category, &d.Specification.Model, &d.Specification.SerialNumber,
		&d.Specification.WeightGrams, pq.Array(&materials),
		&d.ManufacturerWallet, &d.CurrentOwnerWallet, &d.Status,
		&history, pq.Array(&txRefs), &reportID, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	if err := json.Unmarshal(history, &d.OwnershipHistory); err != nil {
		return nil, fmt.Errorf("unmarshal ownership history: %w", err)
	}
	d.Specification.Materials = materials
	d.TxRefs = txRefs
	d.RecyclingReportID = reportID.Int64
	return &d, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
