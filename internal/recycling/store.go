package recycling

import (
	"context"
	"time"
)

// Store persists recycling report projection records.
type Store interface {
	// Create inserts a new report. Returns sentinel.ErrConflict when the
	// ledger ID is already taken.
	Create(ctx context.Context, r *Report) error

	// Get returns the report or sentinel.ErrNotFound.
	Get(ctx context.Context, ledgerID int64) (*Report, error)

	// ListByRecycler returns reports submitted by a wallet, oldest first.
	ListByRecycler(ctx context.Context, recyclerWallet string) ([]*Report, error)

	// MarkVerified sets verified/by/at, guarded by the report not being
	// verified yet. A lost guard comes back as sentinel.ErrStale.
	MarkVerified(ctx context.Context, ledgerID int64, regulatorWallet, txHash string, at time.Time) (*Report, error)
}
