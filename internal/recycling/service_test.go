package recycling_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace/internal/counter"
	"ecotrace/internal/device"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/projection"
	"ecotrace/internal/recycling"
	"ecotrace/internal/registry"
	"ecotrace/pkg/domainerr"
)

const (
	manufacturer = "0xmanu"
	consumer     = "0xcons"
	recycler     = "0xrecy"
	regulator    = "0xregu"
)

type fixture struct {
	registry  *registry.Service
	devices   *device.Service
	recycling *recycling.Service
	bus       *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, ledger.NewMemoryLog())
	bridge := projection.New(projection.NewMemoryApplyLog(), sim, alloc, logger, nil)
	bus := events.NewBus(logger, nil)

	regSvc := registry.NewService(registry.NewMemoryStore(), sim, bridge, bus, logger, nil, time.Second)
	devStore := device.NewMemoryStore()
	devSvc := device.NewService(devStore, regSvc, sim, bridge, bus, logger, nil, time.Second)
	recSvc := recycling.NewService(recycling.NewMemoryStore(), devStore, regSvc, sim, bridge, bus, logger, nil, time.Second)

	f := &fixture{registry: regSvc, devices: devSvc, recycling: recSvc, bus: bus}
	ctx := context.Background()
	for wallet, role := range map[string]registry.Role{
		manufacturer: registry.RoleManufacturer,
		consumer:     registry.RoleConsumer,
		recycler:     registry.RoleRecycler,
		regulator:    registry.RoleRegulator,
	} {
		_, err := regSvc.Register(ctx, wallet, role)
		require.NoError(t, err)
	}
	return f
}

// deviceAtRecycler registers a device and walks it to the recycler's hands.
func (f *fixture) deviceAtRecycler(t *testing.T) *device.Device {
	t.Helper()
	ctx := context.Background()
	d, err := f.devices.Register(ctx, device.Specification{
		Category:     "smartphone",
		Model:        "EP-200",
		SerialNumber: "SN-0001",
		WeightGrams:  182.5,
		Materials:    []string{"aluminium", "glass", "lithium"},
	}, "", manufacturer)
	require.NoError(t, err)
	_, err = f.devices.Transfer(ctx, d.LedgerID, recycler, manufacturer)
	require.NoError(t, err)
	return d
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	r, err := f.recycling.Submit(ctx, d.LedgerID, 160.0, "battery, display, frame", recycler)
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.LedgerID)
	assert.Equal(t, d.LedgerID, r.DeviceLedgerID)
	assert.Equal(t, recycler, r.RecyclerWallet)
	assert.Equal(t, 160.0, r.WeightGrams)
	assert.False(t, r.Verified)
	assert.Len(t, r.TxRefs, 1)

	// Submission retires the device and links the report.
	got, err := f.devices.Get(ctx, d.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusRecycled, got.Status)
	assert.Equal(t, r.LedgerID, got.RecyclingReportID)
}

func TestService_Submit_ReportIDsIndependentOfDeviceIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.deviceAtRecycler(t)
	second := f.deviceAtRecycler(t)
	assert.Equal(t, int64(2), second.LedgerID)

	r1, err := f.recycling.Submit(ctx, first.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)
	r2, err := f.recycling.Submit(ctx, second.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.LedgerID)
	assert.Equal(t, int64(2), r2.LedgerID)
}

func TestService_Submit_RequiresRecyclerRole(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)

	_, err := f.recycling.Submit(context.Background(), d.LedgerID, 100, "shell", consumer)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeUnauthorizedRole, domainerr.CodeOf(err))
}

func TestService_Submit_DeviceMustBeHeldByRecycler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.devices.Register(ctx, device.Specification{Category: "laptop"}, "", manufacturer)
	require.NoError(t, err)

	_, err = f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeNotOwner, domainerr.CodeOf(err))
}

func TestService_Submit_UnknownDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.recycling.Submit(context.Background(), 99, 100, "shell", recycler)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeNotFound, domainerr.CodeOf(err))
}

func TestService_Submit_DuplicateReport(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	_, err := f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	_, err = f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeDuplicateReport, domainerr.CodeOf(err))
}

// gatedDevices holds the first two Get callers at a barrier so two Submits
// both read the device before either one applies.
type gatedDevices struct {
	device.Store
	reads   atomic.Int32
	barrier sync.WaitGroup
}

func (g *gatedDevices) Get(ctx context.Context, ledgerID int64) (*device.Device, error) {
	d, err := g.Store.Get(ctx, ledgerID)
	if g.reads.Add(1) <= 2 {
		g.barrier.Done()
		g.barrier.Wait()
	}
	return d, err
}

func TestService_Submit_ConcurrentSingleWinner(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, ledger.NewMemoryLog())
	bridge := projection.New(projection.NewMemoryApplyLog(), sim, alloc, logger, nil)
	bus := events.NewBus(logger, nil)

	regSvc := registry.NewService(registry.NewMemoryStore(), sim, bridge, bus, logger, nil, time.Second)
	devStore := device.NewMemoryStore()
	devSvc := device.NewService(devStore, regSvc, sim, bridge, bus, logger, nil, time.Second)
	gated := &gatedDevices{Store: devStore}
	gated.barrier.Add(2)
	recStore := recycling.NewMemoryStore()
	recSvc := recycling.NewService(recStore, gated, regSvc, sim, bridge, bus, logger, nil, time.Second)

	ctx := context.Background()
	_, err := regSvc.Register(ctx, manufacturer, registry.RoleManufacturer)
	require.NoError(t, err)
	_, err = regSvc.Register(ctx, recycler, registry.RoleRecycler)
	require.NoError(t, err)
	d, err := devSvc.Register(ctx, device.Specification{Category: "smartphone", Model: "EP-200"}, "", manufacturer)
	require.NoError(t, err)
	_, err = devSvc.Transfer(ctx, d.LedgerID, recycler, manufacturer)
	require.NoError(t, err)

	// Both submissions pass the read-then-check validation before either
	// applies; the device-side guard must pick exactly one winner.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = recSvc.Submit(ctx, d.LedgerID, 100, "shell", recycler)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.Equal(t, domainerr.CodeDuplicateReport, domainerr.CodeOf(err))
		}
	}
	assert.Equal(t, 1, won)

	reports, err := recStore.ListByRecycler(ctx, recycler)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	final, err := devStore.Get(ctx, d.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusRecycled, final.Status)
	assert.Equal(t, reports[0].LedgerID, final.RecyclingReportID)
}

func TestService_Verify(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	r, err := f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	res, err := f.recycling.Verify(ctx, r.LedgerID, regulator)
	require.NoError(t, err)

	assert.True(t, res.Report.Verified)
	assert.Equal(t, regulator, res.Report.VerifiedBy)
	require.NotNil(t, res.Report.VerifiedAt)
	assert.NotEmpty(t, res.TxHash)

	got, err := f.recycling.Get(ctx, r.LedgerID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestService_Verify_RequiresRegulatorRole(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	r, err := f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	_, err = f.recycling.Verify(ctx, r.LedgerID, recycler)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeUnauthorizedRole, domainerr.CodeOf(err))
}

func TestService_Verify_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	r, err := f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	_, err = f.recycling.Verify(ctx, r.LedgerID, regulator)
	require.NoError(t, err)

	_, err = f.recycling.Verify(ctx, r.LedgerID, regulator)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeAlreadyVerified, domainerr.CodeOf(err))
}

func TestService_Verify_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	d := f.deviceAtRecycler(t)
	ctx := context.Background()

	r, err := f.recycling.Submit(ctx, d.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.recycling.Verify(ctx, r.LedgerID, regulator)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.Equal(t, domainerr.CodeAlreadyVerified, domainerr.CodeOf(err))
		}
	}
	assert.Equal(t, 1, won)
}

func TestService_ListByRecycler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.deviceAtRecycler(t)
	second := f.deviceAtRecycler(t)
	_, err := f.recycling.Submit(ctx, first.LedgerID, 100, "shell", recycler)
	require.NoError(t, err)
	_, err = f.recycling.Submit(ctx, second.LedgerID, 120, "shell", recycler)
	require.NoError(t, err)

	reports, err := f.recycling.ListByRecycler(ctx, recycler)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(1), reports[0].LedgerID)
	assert.Equal(t, int64(2), reports[1].LedgerID)

	none, err := f.recycling.ListByRecycler(ctx, consumer)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestLifecycle walks one device through the full chain of custody:
// manufactured, sold, handed to a recycler, reported, and verified.
func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.devices.Register(ctx, device.Specification{
		Category:     "tablet",
		Model:        "TB-10",
		SerialNumber: "SN-7788",
		WeightGrams:  460,
		Materials:    []string{"aluminium", "glass"},
	}, "RFID-7788", manufacturer)
	require.NoError(t, err)
	assert.Equal(t, device.StatusManufactured, d.Status)

	sold, err := f.devices.Transfer(ctx, d.LedgerID, consumer, manufacturer)
	require.NoError(t, err)
	assert.Equal(t, device.StatusInUse, sold.Device.Status)

	handedIn, err := f.devices.Transfer(ctx, d.LedgerID, recycler, consumer)
	require.NoError(t, err)
	assert.Equal(t, device.StatusInUse, handedIn.Device.Status)

	report, err := f.recycling.Submit(ctx, d.LedgerID, 440, "battery, display, board", recycler)
	require.NoError(t, err)

	verified, err := f.recycling.Verify(ctx, report.LedgerID, regulator)
	require.NoError(t, err)
	assert.True(t, verified.Report.Verified)
	assert.Equal(t, regulator, verified.Report.VerifiedBy)

	owners, err := f.devices.History(ctx, d.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, []string{manufacturer, consumer, recycler}, owners)

	final, err := f.devices.Get(ctx, d.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusRecycled, final.Status)
	assert.Equal(t, report.LedgerID, final.RecyclingReportID)
	// register + 2 transfers + report submission on the device record.
	assert.Len(t, final.TxRefs, 4)
}
