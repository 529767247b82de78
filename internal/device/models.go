// Package device owns device identity and the lifecycle state machine:
// registration, ownership transfer, and status updates, each gated by the
// role registry and committed to the ledger before the projection sees them.
package device

import (
	"fmt"
	"strings"
	"time"

	"ecotrace/pkg/domainerr"
)

// Status is the device lifecycle state. Transitions run forward through
// manufactured -> in_use -> {collected|in_recycling} -> recycled, with
// recycled terminal. Intermediate states are deliberately not enforced
// beyond the two hard rules (see Service.UpdateStatus); the ledger itself is
// permissive and the mirror keeps that behavior.
type Status string

const (
	StatusManufactured Status = "manufactured"
	StatusInUse        Status = "in_use"
	StatusCollected    Status = "collected"
	StatusInRecycling  Status = "in_recycling"
	StatusRecycled     Status = "recycled"
)

// ParseStatus validates a status string from the API layer.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(s)) {
	case StatusManufactured:
		return StatusManufactured, nil
	case StatusInUse:
		return StatusInUse, nil
	case StatusCollected:
		return StatusCollected, nil
	case StatusInRecycling:
		return StatusInRecycling, nil
	case StatusRecycled:
		return StatusRecycled, nil
	default:
		return "", domainerr.New(domainerr.CodeBadRequest, "invalid status: "+s)
	}
}

// Specification is the immutable manufacturing description of a device.
type Specification struct {
	Category     string   `json:"category"`
	Model        string   `json:"model"`
	SerialNumber string   `json:"serialNumber"`
	WeightGrams  float64  `json:"weightGrams"`
	Materials    []string `json:"materials"`
}

// OwnershipEntry is one step in the append-only ownership history.
type OwnershipEntry struct {
	OwnerWallet   string    `json:"ownerWallet"`
	TransferredAt time.Time `json:"transferredAt"`
}

// Device is the projection record for one ledger-registered device.
// ManufacturerWallet is set at registration and never changes; the last
// ownership history entry always names the current owner.
type Device struct {
	LedgerID           int64            `json:"ledgerId"`
	QRCode             string           `json:"qrCode"`
	RFIDTag            string           `json:"rfidTag,omitempty"`
	Specification      Specification    `json:"specification"`
	ManufacturerWallet string           `json:"manufacturerWallet"`
	CurrentOwnerWallet string           `json:"currentOwnerWallet"`
	Status             Status           `json:"status"`
	OwnershipHistory   []OwnershipEntry `json:"ownershipHistory"`
	TxRefs             []string         `json:"txRefs"`
	RecyclingReportID  int64            `json:"recyclingReportId,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// QRCodeFor derives the stable device correlation string embedded in QR
// labels. Encoding the label image is the API layer's concern.
func QRCodeFor(ledgerID int64) string {
	return fmt.Sprintf("ecotrace://device/%d", ledgerID)
}

// TransferResult reports a completed ownership transfer.
type TransferResult struct {
	Device      *Device `json:"device"`
	TxHash      string  `json:"txHash"`
	BlockNumber int64   `json:"blockNumber"`
}

// UpdateResult reports a completed status update.
type UpdateResult struct {
	Device      *Device `json:"device"`
	TxHash      string  `json:"txHash"`
	BlockNumber int64   `json:"blockNumber"`
}

// RegisteredPayload is the committed-event payload for device registration.
type RegisteredPayload struct {
	Specification      Specification `json:"specification"`
	RFIDTag            string        `json:"rfidTag,omitempty"`
	ManufacturerWallet string        `json:"manufacturerWallet"`
	RegisteredAt       time.Time     `json:"registeredAt"`
}

// TransferredPayload is the committed-event payload for ownership transfer.
// FromWallet doubles as the state guard when the event is applied.
type TransferredPayload struct {
	FromWallet    string    `json:"fromWallet"`
	ToWallet      string    `json:"toWallet"`
	NewStatus     Status    `json:"newStatus"`
	TransferredAt time.Time `json:"transferredAt"`
}

// StatusUpdatedPayload is the committed-event payload for status updates.
type StatusUpdatedPayload struct {
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	Wallet     string    `json:"wallet"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
