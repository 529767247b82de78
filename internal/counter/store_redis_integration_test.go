//go:build integration

package counter_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/counter"
	"ecotrace/pkg/testutil/containers"
)

func TestRedisAllocator_Sequential(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	alloc := counter.NewRedisAllocator(rc.Client)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := alloc.Next(ctx, counter.NamespaceDevice)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	current, err := alloc.Current(ctx, counter.NamespaceDevice)
	require.NoError(t, err)
	assert.Equal(t, int64(5), current)
}

func TestRedisAllocator_NamespacesIndependent(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	alloc := counter.NewRedisAllocator(rc.Client)
	ctx := context.Background()

	_, err := alloc.Next(ctx, counter.NamespaceDevice)
	require.NoError(t, err)
	got, err := alloc.Next(ctx, counter.NamespaceReport)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRedisAllocator_CurrentBeforeUse(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	alloc := counter.NewRedisAllocator(rc.Client)

	current, err := alloc.Current(context.Background(), counter.NamespaceReport)
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestRedisAllocator_ConcurrentDistinctGapless(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	alloc := counter.NewRedisAllocator(rc.Client)
	ctx := context.Background()

	const n = 100
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := alloc.Next(ctx, counter.NamespaceDevice)
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, id := range results {
		assert.Equal(t, int64(i+1), id)
	}
}
