package ledger

import (
	"context"
	"sync"
)

// MemoryLog keeps the commitment log in memory, in append order.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Committed
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, c Committed) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, c)
	return nil
}

func (l *MemoryLog) Range(_ context.Context, namespace string, from, to int64) ([]Committed, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Committed
	for _, c := range l.entries {
		if c.Op.Namespace == namespace && c.Op.LedgerID >= from && c.Op.LedgerID <= to {
			out = append(out, c)
		}
	}
	return out, nil
}
