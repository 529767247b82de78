package projection

import (
	"context"
	"sync"
)

type appliedEntry struct {
	namespace string
	ledgerID  int64
}

// MemoryApplyLog keeps the applied set in memory.
type MemoryApplyLog struct {
	mu      sync.Mutex
	applied map[string]appliedEntry
}

func NewMemoryApplyLog() *MemoryApplyLog {
	return &MemoryApplyLog{applied: make(map[string]appliedEntry)}
}

func (l *MemoryApplyLog) Record(_ context.Context, txHash, namespace string, ledgerID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.applied[txHash]; ok {
		return false, nil
	}
	l.applied[txHash] = appliedEntry{namespace: namespace, ledgerID: ledgerID}
	return true, nil
}

func (l *MemoryApplyLog) Remove(_ context.Context, txHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.applied, txHash)
	return nil
}

func (l *MemoryApplyLog) MaxLedgerID(_ context.Context, namespace string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var max int64
	for _, e := range l.applied {
		if e.namespace == namespace && e.ledgerID > max {
			max = e.ledgerID
		}
	}
	return max, nil
}
