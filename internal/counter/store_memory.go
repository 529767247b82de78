package counter

import (
	"context"
	"sync"
)

// MemoryAllocator implements Allocator with a mutex-guarded map. Used by the
// simulator-only deployment and by tests. The lock makes increment-and-read
// one atomic step, matching the Redis contract.
type MemoryAllocator struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{values: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(_ context.Context, namespace string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[namespace]++
	return a.values[namespace], nil
}

func (a *MemoryAllocator) Current(_ context.Context, namespace string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.values[namespace], nil
}
