package device

import (
	"context"
	"time"
)

// Store persists device projection records. Mutations are conditional
// replaces at single-document granularity: the previous owner or status acts
// as the guard, and a lost race comes back as sentinel.ErrStale rather than
// silently overwriting a concurrent writer.
type Store interface {
	// Create inserts a new device. Returns sentinel.ErrConflict when the
	// ledger ID is already taken.
	Create(ctx context.Context, d *Device) error

	// Get returns the device or sentinel.ErrNotFound.
	Get(ctx context.Context, ledgerID int64) (*Device, error)

	// ListByOwner returns devices currently owned by the wallet, optionally
	// filtering out recycled ones.
	ListByOwner(ctx context.Context, ownerWallet string, includeRecycled bool) ([]*Device, error)

	// TransferOwner appends an ownership entry and replaces the current
	// owner, guarded by fromWallet. status is the post-transfer status.
	TransferOwner(ctx context.Context, ledgerID int64, fromWallet, toWallet string, status Status, txHash string, at time.Time) (*Device, error)

	// UpdateStatus replaces the status, guarded by fromStatus.
	UpdateStatus(ctx context.Context, ledgerID int64, fromStatus, toStatus Status, txHash string, at time.Time) (*Device, error)

	// AttachReport marks the device recycled and links its report,
	// guarded by ownerWallet still being the current owner.
	AttachReport(ctx context.Context, ledgerID, reportID int64, ownerWallet, txHash string, at time.Time) (*Device, error)
}
