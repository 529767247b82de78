// Package storage owns the PostgreSQL schema shared by the projection
// stores and the simulator commit log. The statements are idempotent so
// startup and tests can run them unconditionally.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS registrations (
		wallet_address TEXT PRIMARY KEY,
		roles          TEXT[] NOT NULL DEFAULT '{}',
		registered_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		ledger_id            BIGINT PRIMARY KEY,
		qr_code              TEXT NOT NULL,
		rfid_tag             TEXT NOT NULL DEFAULT '',
		category             TEXT NOT NULL,
		model                TEXT NOT NULL,
		serial_number        TEXT NOT NULL,
		weight_grams         DOUBLE PRECISION NOT NULL,
		materials            TEXT[] NOT NULL DEFAULT '{}',
		manufacturer_wallet  TEXT NOT NULL,
		current_owner_wallet TEXT NOT NULL,
		status               TEXT NOT NULL,
		ownership_history    JSONB NOT NULL DEFAULT '[]',
		tx_refs              TEXT[] NOT NULL DEFAULT '{}',
		recycling_report_id  BIGINT,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS devices_current_owner_idx
		ON devices (current_owner_wallet)`,
	`CREATE TABLE IF NOT EXISTS reports (
		ledger_id        BIGINT PRIMARY KEY,
		device_ledger_id BIGINT NOT NULL,
		recycler_wallet  TEXT NOT NULL,
		weight_grams     DOUBLE PRECISION NOT NULL,
		components       TEXT NOT NULL DEFAULT '',
		verified         BOOLEAN NOT NULL DEFAULT FALSE,
		verified_by      TEXT,
		verified_at      TIMESTAMPTZ,
		tx_refs          TEXT[] NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reports_recycler_idx
		ON reports (recycler_wallet)`,
	`CREATE TABLE IF NOT EXISTS commit_log (
		tx_hash      TEXT PRIMARY KEY,
		block_number BIGINT NOT NULL,
		namespace    TEXT NOT NULL DEFAULT '',
		ledger_id    BIGINT NOT NULL DEFAULT 0,
		committed_at TIMESTAMPTZ NOT NULL,
		operation    JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS commit_log_namespace_idx
		ON commit_log (namespace, ledger_id)`,
	`CREATE TABLE IF NOT EXISTS applied_events (
		tx_hash    TEXT PRIMARY KEY,
		namespace  TEXT NOT NULL DEFAULT '',
		ledger_id  BIGINT NOT NULL DEFAULT 0,
		applied_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS applied_events_namespace_idx
		ON applied_events (namespace, ledger_id)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
