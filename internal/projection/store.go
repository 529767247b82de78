package projection

import "context"

// ApplyLog records which commitment references have already been applied to
// the off-chain projection. It is the idempotency backbone of the bridge:
// at-least-once delivery upstream collapses to exactly-once application.
type ApplyLog interface {
	// Record marks a commitment reference as applied. Returns false when
	// the reference was already recorded (duplicate delivery).
	Record(ctx context.Context, txHash, namespace string, ledgerID int64) (bool, error)

	// Remove undoes a Record after a failed apply so the retry can run.
	Remove(ctx context.Context, txHash string) error

	// MaxLedgerID returns the highest applied ledger ID for a namespace,
	// 0 when nothing has been applied. Compared against the counter
	// high-water mark to detect divergence on startup.
	MaxLedgerID(ctx context.Context, namespace string) (int64, error)
}
