// Package recycling owns the end-of-life report workflow: a recycler submits
// a report for a device it holds, which retires the device, and a regulator
// verifies the report exactly once.
package recycling

import "time"

// Report is the projection record for one recycling report. Verified flips
// to true at most once; VerifiedBy/VerifiedAt are only set alongside it.
type Report struct {
	LedgerID       int64      `json:"ledgerId"`
	DeviceLedgerID int64      `json:"deviceLedgerId"`
	RecyclerWallet string     `json:"recyclerWallet"`
	WeightGrams    float64    `json:"weightGrams"`
	Components     string     `json:"components"`
	Verified       bool       `json:"verified"`
	VerifiedBy     string     `json:"verifiedBy,omitempty"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
	TxRefs         []string   `json:"txRefs"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// VerifyResult reports a completed verification.
type VerifyResult struct {
	Report      *Report `json:"report"`
	TxHash      string  `json:"txHash"`
	BlockNumber int64   `json:"blockNumber"`
}

// SubmittedPayload is the committed-event payload for report submission.
type SubmittedPayload struct {
	DeviceLedgerID int64     `json:"deviceLedgerId"`
	RecyclerWallet string    `json:"recyclerWallet"`
	WeightGrams    float64   `json:"weightGrams"`
	Components     string    `json:"components"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// VerifiedPayload is the committed-event payload for report verification.
type VerifiedPayload struct {
	RegulatorWallet string    `json:"regulatorWallet"`
	VerifiedAt      time.Time `json:"verifiedAt"`
}
