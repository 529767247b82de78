package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the counter, and the
// ledger backends return these (optionally wrapped) so services can translate
// them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique key already taken
// - ErrStale: conditional update lost against a concurrent writer
// - ErrUnavailable: counter or storage backend unreachable
// - ErrTimeout: bounded external call exceeded its deadline
//
// For validation and authorization errors use pkg/domainerr directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStale       = errors.New("stale")
	ErrUnavailable = errors.New("unavailable")
	ErrTimeout     = errors.New("timeout")
)
