package ledger

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/counter"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func newSimulator() *Simulator {
	return NewSimulator(counter.NewMemoryAllocator(), NewMemoryLog())
}

func TestSimulator_CommitAllocatesSequentialIDs(t *testing.T) {
	sim := newSimulator()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		receipt, err := sim.Commit(ctx, Operation{
			Kind:      OpRegisterDevice,
			Wallet:    "0xabc",
			Namespace: counter.NamespaceDevice,
		})
		require.NoError(t, err)
		assert.Equal(t, want, receipt.LedgerID)
		assert.Regexp(t, txHashPattern, receipt.TxHash)
		assert.GreaterOrEqual(t, receipt.BlockNumber, int64(15_000_000))
	}
}

func TestSimulator_NonAllocatingCommitEchoesLedgerID(t *testing.T) {
	sim := newSimulator()
	receipt, err := sim.Commit(context.Background(), Operation{
		Kind:     OpTransferOwnership,
		Wallet:   "0xabc",
		LedgerID: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), receipt.LedgerID)
	assert.Regexp(t, txHashPattern, receipt.TxHash)
}

func TestSimulator_ConcurrentCommitsDistinctIDs(t *testing.T) {
	sim := newSimulator()
	ctx := context.Background()

	const callers = 50
	seen := make(map[int64]bool, callers)
	hashes := make(map[string]bool, callers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := sim.Commit(ctx, Operation{
				Kind:      OpRegisterDevice,
				Namespace: counter.NamespaceDevice,
			})
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[receipt.LedgerID], "duplicate ledger ID %d", receipt.LedgerID)
			assert.False(t, hashes[receipt.TxHash], "duplicate tx hash")
			seen[receipt.LedgerID] = true
			hashes[receipt.TxHash] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, callers)
}

func TestSimulator_ReplayReturnsRange(t *testing.T) {
	sim := newSimulator()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := sim.Commit(ctx, Operation{Kind: OpRegisterDevice, Namespace: counter.NamespaceDevice})
		require.NoError(t, err)
	}
	// Interleave a report allocation; it must not appear in the device range.
	_, err := sim.Commit(ctx, Operation{Kind: OpSubmitReport, Namespace: counter.NamespaceReport})
	require.NoError(t, err)

	got, err := sim.Replay(ctx, counter.NamespaceDevice, 2, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, int64(2+i), c.Op.LedgerID)
		assert.Equal(t, counter.NamespaceDevice, c.Op.Namespace)
	}
}
