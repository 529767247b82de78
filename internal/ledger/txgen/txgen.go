// Package txgen produces commitment references for the ledger simulator:
// transaction hashes and block numbers shaped like the real thing so callers
// cannot tell the backends apart.
package txgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const blockNumberBase = 15_000_000

// TxHash returns a random 32-byte hash rendered as 0x + 64 hex characters.
func TxHash() string {
	buf := make([]byte, 32)
	// crypto/rand.Read does not fail on supported platforms.
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}

// BlockNumber returns a realistic looking block number.
func BlockNumber() int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1_000_000))
	return blockNumberBase + n.Int64()
}

// GasEstimate carries a simulated fee preview for the API layer.
type GasEstimate struct {
	GasLimit     int64  `json:"gasLimit"`
	GasPrice     string `json:"gasPrice"`
	MaxFee       string `json:"maxFee"`
	EstimatedUSD string `json:"estimatedUsd"`
}

// EstimateGas simulates gas estimation for a transaction.
func EstimateGas() GasEstimate {
	limit, _ := rand.Int(rand.Reader, big.NewInt(100_000))
	fee, _ := rand.Int(rand.Reader, big.NewInt(3000))
	usd, _ := rand.Int(rand.Reader, big.NewInt(500))
	return GasEstimate{
		GasLimit:     50_000 + limit.Int64(),
		GasPrice:     "20 gwei",
		MaxFee:       fmt.Sprintf("%.4f ETH", 0.001+float64(fee.Int64())/1_000_000),
		EstimatedUSD: fmt.Sprintf("$%.2f", 1+float64(usd.Int64())/100),
	}
}
