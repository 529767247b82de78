package registry

import (
	"context"
	"time"
)

// Store persists wallet registrations. Implementations must make AppendRole
// a single atomic document update: a concurrent pair of appends may not lose
// either role or leave a partial role set.
type Store interface {
	// Get returns the registration for a normalized wallet address.
	// Returns sentinel.ErrNotFound when the wallet is unknown.
	Get(ctx context.Context, wallet string) (Registration, error)

	// AppendRole adds a role to a wallet, creating the registration on
	// first use. Appending an already-held role is a no-op. Returns the
	// resulting registration.
	AppendRole(ctx context.Context, wallet string, role Role, registeredAt time.Time) (Registration, error)
}
