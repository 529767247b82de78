// Package ledger defines the commit contract shared by the external ledger
// client and the local simulator. Services never know which one they talk
// to: both allocate identifiers through the same counter contract and return
// the same receipt shape.
package ledger

import (
	"context"
	"encoding/json"
	"time"
)

//go:generate mockgen -source=ledger.go -destination=mocks/ledger_mock.go -package=mocks

// OpKind labels a ledger operation.
type OpKind string

const (
	OpRegisterUser      OpKind = "register_user"
	OpRegisterDevice    OpKind = "register_device"
	OpTransferOwnership OpKind = "transfer_ownership"
	OpUpdateStatus      OpKind = "update_status"
	OpSubmitReport      OpKind = "submit_report"
	OpVerifyReport      OpKind = "verify_report"
)

// Operation is one unit of work submitted for commitment. For allocating
// operations Namespace names the counter to draw the new ledger ID from;
// for all others LedgerID references the existing entity.
type Operation struct {
	Kind      OpKind          `json:"kind"`
	Wallet    string          `json:"wallet"`
	LedgerID  int64           `json:"ledgerId,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Receipt correlates a committed operation to its effects. TxHash is the
// opaque commitment reference used as the idempotency key downstream.
type Receipt struct {
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	LedgerID    int64     `json:"ledgerId"`
	CommittedAt time.Time `json:"committedAt"`
}

// Committed pairs an operation with its receipt in commitment order.
type Committed struct {
	Op      Operation `json:"op"`
	Receipt Receipt   `json:"receipt"`
}

// Ledger is the authoritative append-only backend. Once Commit returns, the
// operation happened and is never rolled back; downstream consumers must
// catch up, not the other way around.
type Ledger interface {
	// Commit appends the operation. For allocating operations the receipt
	// carries the newly assigned ledger ID.
	Commit(ctx context.Context, op Operation) (Receipt, error)

	// Replay returns committed operations whose allocation in namespace
	// falls in [from, to], in commitment order. Used by the projection
	// bridge to close gaps after a restart.
	Replay(ctx context.Context, namespace string, from, to int64) ([]Committed, error)
}
