package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/device"
	"ecotrace/pkg/sentinel"
)

func TestMemoryStore_AttachReportOnce(t *testing.T) {
	store := device.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Create(ctx, &device.Device{
		LedgerID:           1,
		CurrentOwnerWallet: "0xrecy",
		Status:             device.StatusInUse,
		CreatedAt:          now,
		UpdatedAt:          now,
	}))

	got, err := store.AttachReport(ctx, 1, 7, "0xrecy", "0xtx1", now)
	require.NoError(t, err)
	assert.Equal(t, device.StatusRecycled, got.Status)
	assert.Equal(t, int64(7), got.RecyclingReportID)

	// The report-free guard rejects a second attach even by the same owner.
	_, err = store.AttachReport(ctx, 1, 8, "0xrecy", "0xtx2", now)
	assert.ErrorIs(t, err, sentinel.ErrStale)
}
