// Package events defines the committed-event shape shared by the ledger,
// the projection bridge, and the live fan-out, plus the in-process bus that
// carries the commit stream to its consumers.
package events

import (
	"encoding/json"
	"time"
)

// Kind labels a committed ledger event.
type Kind string

const (
	KindUserRegistered       Kind = "user:registered"
	KindDeviceRegistered     Kind = "device:registered"
	KindOwnershipTransferred Kind = "device:transferred"
	KindStatusUpdated        Kind = "device:statusUpdated"
	KindReportSubmitted      Kind = "report:submitted"
	KindReportVerified       Kind = "report:verified"
)

// Channel names for live subscribers: one per role plus a global feed.
const (
	ChannelGlobal       = "global"
	ChannelManufacturer = "manufacturer"
	ChannelConsumer     = "consumer"
	ChannelRecycler     = "recycler"
	ChannelRegulator    = "regulator"
)

// Event is one committed ledger operation. The payload is domain-owned JSON;
// the emitting package defines its shape and the bridge decodes it back.
type Event struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	LedgerID    int64           `json:"ledgerId"`
	Namespace   string          `json:"namespace,omitempty"`
	TxHash      string          `json:"txHash"`
	BlockNumber int64           `json:"blockNumber"`
	Role        string          `json:"role,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Channels returns the live channels logically interested in this event.
// Every event also goes to the global channel.
func (e Event) Channels() []string {
	switch e.Kind {
	case KindUserRegistered:
		if e.Role != "" {
			return []string{ChannelGlobal, e.Role}
		}
		return []string{ChannelGlobal}
	case KindDeviceRegistered:
		return []string{ChannelGlobal, ChannelManufacturer}
	case KindOwnershipTransferred:
		return []string{ChannelGlobal, ChannelConsumer, ChannelRecycler}
	case KindStatusUpdated:
		return []string{ChannelGlobal, ChannelRecycler, ChannelRegulator}
	case KindReportSubmitted, KindReportVerified:
		return []string{ChannelGlobal, ChannelRecycler, ChannelRegulator}
	default:
		return []string{ChannelGlobal}
	}
}
