//go:build integration

package ledger_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/counter"
	"ecotrace/internal/ledger"
	"ecotrace/pkg/testutil/containers"
)

func TestPostgresLog_AppendAndRange(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	log := ledger.NewPostgresLog(pc.DB)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sim.Commit(ctx, ledger.Operation{
			Kind:      ledger.OpRegisterDevice,
			Wallet:    "0xmanu",
			Namespace: counter.NamespaceDevice,
			Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i+1)),
		})
		require.NoError(t, err)
	}
	// A commit in another namespace stays out of the device range.
	_, err := sim.Commit(ctx, ledger.Operation{
		Kind:      ledger.OpSubmitReport,
		Wallet:    "0xrecy",
		Namespace: counter.NamespaceReport,
		Payload:   json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	committed, err := sim.Replay(ctx, counter.NamespaceDevice, 2, 3)
	require.NoError(t, err)
	require.Len(t, committed, 2)
	assert.Equal(t, int64(2), committed[0].Receipt.LedgerID)
	assert.Equal(t, int64(3), committed[1].Receipt.LedgerID)
	assert.Equal(t, ledger.OpRegisterDevice, committed[0].Op.Kind)

	// Replaying an appended commit twice does not duplicate rows.
	require.NoError(t, log.Append(ctx, committed[0]))
	again, err := sim.Replay(ctx, counter.NamespaceDevice, 2, 2)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}
