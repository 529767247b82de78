// Package registry maps wallet identities to their lifecycle roles. A wallet
// may hold several roles at once and the role set only ever grows.
package registry

import (
	"strings"
	"time"

	"ecotrace/pkg/domainerr"
)

// Role is one of the four lifecycle parties.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleConsumer     Role = "consumer"
	RoleRecycler     Role = "recycler"
	RoleRegulator    Role = "regulator"
)

// ParseRole validates a role string from the API layer.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleManufacturer:
		return RoleManufacturer, nil
	case RoleConsumer:
		return RoleConsumer, nil
	case RoleRecycler:
		return RoleRecycler, nil
	case RoleRegulator:
		return RoleRegulator, nil
	default:
		return "", domainerr.New(domainerr.CodeBadRequest, "invalid role: "+s)
	}
}

// Registration binds a wallet to its role set. Roles never shrink; the
// entity is never deleted.
type Registration struct {
	WalletAddress string    `json:"walletAddress"`
	Roles         []Role    `json:"roles"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

// HasRole reports role membership.
func (r Registration) HasRole(role Role) bool {
	for _, held := range r.Roles {
		if held == role {
			return true
		}
	}
	return false
}

// RegistrationResult pairs the updated registration with its commitment
// reference.
type RegistrationResult struct {
	Registration Registration `json:"registration"`
	TxHash       string       `json:"txHash"`
	BlockNumber  int64        `json:"blockNumber"`
}

// RegisteredPayload is the committed-event payload for role registration.
type RegisteredPayload struct {
	WalletAddress string    `json:"walletAddress"`
	Role          Role      `json:"role"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

// NormalizeWallet lowercases a wallet address so entities never differ only
// in case.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
