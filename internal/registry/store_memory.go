package registry

import (
	"context"
	"sync"
	"time"

	"ecotrace/pkg/sentinel"
)

// MemoryStore keeps registrations in a mutex-guarded map. The lock makes
// role appends atomic, matching the postgres contract.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Registration)}
}

func (s *MemoryStore) Get(_ context.Context, wallet string) (Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.entries[wallet]
	if !ok {
		return Registration{}, sentinel.ErrNotFound
	}
	return cloneRegistration(reg), nil
}

func (s *MemoryStore) AppendRole(_ context.Context, wallet string, role Role, registeredAt time.Time) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.entries[wallet]
	if !ok {
		reg = Registration{
			WalletAddress: wallet,
			Roles:         []Role{role},
			RegisteredAt:  registeredAt,
		}
		s.entries[wallet] = reg
		return cloneRegistration(reg), nil
	}
	if !reg.HasRole(role) {
		reg.Roles = append(reg.Roles, role)
		s.entries[wallet] = reg
	}
	return cloneRegistration(reg), nil
}

func cloneRegistration(reg Registration) Registration {
	reg.Roles = append([]Role{}, reg.Roles...)
	return reg
}
