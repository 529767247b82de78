//go:build integration

package recycling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/recycling"
	"ecotrace/pkg/sentinel"
	"ecotrace/pkg/testutil/containers"
)

func seedReport(t *testing.T, store *recycling.PostgresStore, ledgerID int64) *recycling.Report {
	t.Helper()
	r := &recycling.Report{
		LedgerID:       ledgerID,
		DeviceLedgerID: 1,
		RecyclerWallet: "0xrecy",
		WeightGrams:    160,
		Components:     "battery, display",
		TxRefs:         []string{"0xtx1"},
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(context.Background(), r))
	return r
}

func TestPostgresStore_CreateAndGet(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := recycling.NewPostgresStore(pc.DB)
	ctx := context.Background()

	seeded := seedReport(t, store, 1)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, seeded.DeviceLedgerID, got.DeviceLedgerID)
	assert.Equal(t, seeded.Components, got.Components)
	assert.False(t, got.Verified)
	assert.Nil(t, got.VerifiedAt)

	err = store.Create(ctx, seeded)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_MarkVerifiedOnce(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := recycling.NewPostgresStore(pc.DB)
	ctx := context.Background()
	seedReport(t, store, 1)
	at := time.Now().UTC()

	got, err := store.MarkVerified(ctx, 1, "0xregu", "0xtx2", at)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "0xregu", got.VerifiedBy)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, []string{"0xtx1", "0xtx2"}, got.TxRefs)

	_, err = store.MarkVerified(ctx, 1, "0xregu", "0xtx3", at)
	assert.ErrorIs(t, err, sentinel.ErrStale)

	_, err = store.MarkVerified(ctx, 42, "0xregu", "0xtx3", at)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_ListByRecycler(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	store := recycling.NewPostgresStore(pc.DB)
	ctx := context.Background()
	seedReport(t, store, 1)
	seedReport(t, store, 2)

	reports, err := store.ListByRecycler(ctx, "0xrecy")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(1), reports[0].LedgerID)

	none, err := store.ListByRecycler(ctx, "0xother")
	require.NoError(t, err)
	assert.Empty(t, none)
}
