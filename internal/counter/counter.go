// Package counter hands out strictly increasing, collision-free identifiers
// per namespace. It is the only piece of cross-entity coordination in the
// system: the ledger simulator and every service that needs a new ledger ID
// go through an Allocator.
package counter

import "context"

// Namespaces used by the application. A namespace is created implicitly at
// zero on first allocation.
const (
	NamespaceDevice = "deviceId"
	NamespaceReport = "reportId"
)

// Allocator allocates sequential identifiers. Next must be a single atomic
// read-modify-write: under N concurrent callers it returns N distinct
// consecutive values above the prior high-water mark. A read-then-write
// implementation is not acceptable here.
type Allocator interface {
	// Next returns the next identifier for the namespace, starting at 1.
	Next(ctx context.Context, namespace string) (int64, error)

	// Current returns the high-water mark without consuming a value.
	// Returns 0 when the namespace has never allocated.
	Current(ctx context.Context, namespace string) (int64, error)
}
