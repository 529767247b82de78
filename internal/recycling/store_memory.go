package recycling

import (
	"context"
	"sort"
	"sync"
	"time"

	"ecotrace/pkg/sentinel"
)

// MemoryStore keeps reports in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[int64]*Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[int64]*Report)}
}

func (s *MemoryStore) Create(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.LedgerID]; ok {
		return sentinel.ErrConflict
	}
	s.reports[r.LedgerID] = cloneReport(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ledgerID int64) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *MemoryStore) ListByRecycler(_ context.Context, recyclerWallet string) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Report
	for _, r := range s.reports {
		if r.RecyclerWallet == recyclerWallet {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out, nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, ledgerID int64, regulatorWallet, txHash string, at time.Time) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if r.Verified {
		return nil, sentinel.ErrStale
	}
	r.Verified = true
	r.VerifiedBy = regulatorWallet
	verifiedAt := at
	r.VerifiedAt = &verifiedAt
	r.TxRefs = append(r.TxRefs, txHash)
	return cloneReport(r), nil
}

func cloneReport(r *Report) *Report {
	cp := *r
	cp.TxRefs = append([]string{}, r.TxRefs...)
	if r.VerifiedAt != nil {
		at := *r.VerifiedAt
		cp.VerifiedAt = &at
	}
	return &cp
}
