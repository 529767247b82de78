package device

import (
	"context"
	"sync"
	"time"

	"ecotrace/pkg/sentinel"
)

// MemoryStore keeps devices in a mutex-guarded map. Guarded mutations
// re-check their precondition under the lock, matching the conditional
// UPDATE semantics of the postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[int64]*Device
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[int64]*Device)}
}

func (s *MemoryStore) Create(_ context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.LedgerID]; ok {
		return sentinel.ErrConflict
	}
	s.devices[d.LedgerID] = cloneDevice(d)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ledgerID int64) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDevice(d), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerWallet string, includeRecycled bool) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Device
	for _, d := range s.devices {
		if d.CurrentOwnerWallet != ownerWallet {
			continue
		}
		if !includeRecycled && d.Status == StatusRecycled {
			continue
		}
		out = append(out, cloneDevice(d))
	}
	return out, nil
}

func (s *MemoryStore) TransferOwner(_ context.Context, ledgerID int64, fromWallet, toWallet string, status Status, txHash string, at time.Time) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if d.CurrentOwnerWallet != fromWallet {
		return nil, sentinel.ErrStale
	}
	d.CurrentOwnerWallet = toWallet
	d.Status = status
	d.OwnershipHistory = append(d.OwnershipHistory, OwnershipEntry{OwnerWallet: toWallet, TransferredAt: at})
	d.TxRefs = append(d.TxRefs, txHash)
	d.UpdatedAt = at
	return cloneDevice(d), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, ledgerID int64, fromStatus, toStatus Status, txHash string, at time.Time) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if d.Status != fromStatus {
		return nil, sentinel.ErrStale
	}
	d.Status = toStatus
	d.TxRefs = append(d.TxRefs, txHash)
	d.UpdatedAt = at
	return cloneDevice(d), nil
}

func (s *MemoryStore) AttachReport(_ context.Context, ledgerID, reportID int64, ownerWallet, txHash string, at time.Time) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ledgerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if d.CurrentOwnerWallet != ownerWallet || d.Status == StatusRecycled || d.RecyclingReportID != 0 {
		return nil, sentinel.ErrStale
	}
	d.Status = StatusRecycled
	d.RecyclingReportID = reportID
	d.TxRefs = append(d.TxRefs, txHash)
	d.UpdatedAt = at
	return cloneDevice(d), nil
}

func cloneDevice(d *Device) *Device {
	cp := *d
	cp.Specification.Materials = append([]string{}, d.Specification.Materials...)
	cp.OwnershipHistory = append([]OwnershipEntry{}, d.OwnershipHistory...)
	cp.TxRefs = append([]string{}, d.TxRefs...)
	return &cp
}
