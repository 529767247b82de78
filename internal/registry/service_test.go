package registry_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ecotrace/internal/counter"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/ledger/mocks"
	"ecotrace/internal/projection"
	"ecotrace/internal/registry"
	"ecotrace/pkg/domainerr"
	"ecotrace/pkg/sentinel"
)

type fixture struct {
	svc *registry.Service
	bus *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, ledger.NewMemoryLog())
	bridge := projection.New(projection.NewMemoryApplyLog(), sim, alloc, logger, nil)
	bus := events.NewBus(logger, nil)
	svc := registry.NewService(registry.NewMemoryStore(), sim, bridge, bus, logger, nil, time.Second)
	return &fixture{svc: svc, bus: bus}
}

func TestService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "0xABCDEF0123", registry.RoleManufacturer)
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef0123", res.Registration.WalletAddress)
	assert.Equal(t, []registry.Role{registry.RoleManufacturer}, res.Registration.Roles)
	assert.True(t, strings.HasPrefix(res.TxHash, "0x"))
	assert.Len(t, res.TxHash, 66)
	assert.GreaterOrEqual(t, res.BlockNumber, int64(15_000_000))
}

func TestService_Register_EmptyWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), "   ", registry.RoleConsumer)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeBadRequest, domainerr.CodeOf(err))
}

func TestService_Register_AccumulatesRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "0xaa", registry.RoleManufacturer)
	require.NoError(t, err)
	res, err := f.svc.Register(ctx, "0xAA", registry.RoleRecycler)
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]registry.Role{registry.RoleManufacturer, registry.RoleRecycler},
		res.Registration.Roles)
}

func TestService_Register_SameRoleIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "0xaa", registry.RoleConsumer)
	require.NoError(t, err)
	res, err := f.svc.Register(ctx, "0xaa", registry.RoleConsumer)
	require.NoError(t, err)

	assert.Equal(t, []registry.Role{registry.RoleConsumer}, res.Registration.Roles)
}

func TestService_Register_ConcurrentRolesBothSurvive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roles := []registry.Role{
		registry.RoleManufacturer, registry.RoleConsumer,
		registry.RoleRecycler, registry.RoleRegulator,
	}
	var wg sync.WaitGroup
	for _, role := range roles {
		wg.Add(1)
		go func(role registry.Role) {
			defer wg.Done()
			_, err := f.svc.Register(ctx, "0xaa", role)
			assert.NoError(t, err)
		}(role)
	}
	wg.Wait()

	reg, err := f.svc.Get(ctx, "0xaa")
	require.NoError(t, err)
	assert.ElementsMatch(t, roles, reg.Roles)
}

func TestService_Register_LedgerUnavailable(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctrl := gomock.NewController(t)
	led := mocks.NewMockLedger(ctrl)
	led.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(ledger.Receipt{}, sentinel.ErrUnavailable)

	alloc := counter.NewMemoryAllocator()
	bridge := projection.New(projection.NewMemoryApplyLog(), led, alloc, logger, nil)
	bus := events.NewBus(logger, nil)
	store := registry.NewMemoryStore()
	svc := registry.NewService(store, led, bridge, bus, logger, nil, time.Second)
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xaa", registry.RoleManufacturer)
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeUnavailable, domainerr.CodeOf(err))

	// A failed commit leaves no trace in the projection.
	_, err = store.Get(ctx, "0xaa")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

// flakyStore fails role appends on demand while leaving reads intact.
type flakyStore struct {
	registry.Store
	failAppend atomic.Bool
}

func (s *flakyStore) AppendRole(ctx context.Context, wallet string, role registry.Role, registeredAt time.Time) (registry.Registration, error) {
	if s.failAppend.Load() {
		return registry.Registration{}, sentinel.ErrUnavailable
	}
	return s.Store.AppendRole(ctx, wallet, role, registeredAt)
}

func TestService_Register_DeferredApplyReportsGrantedRole(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	alloc := counter.NewMemoryAllocator()
	sim := ledger.NewSimulator(alloc, ledger.NewMemoryLog())
	bridge := projection.New(projection.NewMemoryApplyLog(), sim, alloc, logger, nil)
	bus := events.NewBus(logger, nil)
	store := &flakyStore{Store: registry.NewMemoryStore()}
	svc := registry.NewService(store, sim, bridge, bus, logger, nil, time.Second)
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xaa", registry.RoleManufacturer)
	require.NoError(t, err)

	// With the append deferred to the retry queue, the result must still
	// report every held role plus the one just granted.
	store.failAppend.Store(true)
	res, err := svc.Register(ctx, "0xaa", registry.RoleRecycler)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]registry.Role{registry.RoleManufacturer, registry.RoleRecycler},
		res.Registration.Roles)

	// A fresh wallet falls back to the committed payload.
	res, err = svc.Register(ctx, "0xbb", registry.RoleConsumer)
	require.NoError(t, err)
	assert.Equal(t, []registry.Role{registry.RoleConsumer}, res.Registration.Roles)
}

func TestService_Register_PublishesToRoleChannel(t *testing.T) {
	f := newFixture(t)

	globalCh, cancelGlobal := f.bus.Subscribe(events.ChannelGlobal)
	defer cancelGlobal()
	recyclerCh, cancelRecycler := f.bus.Subscribe(events.ChannelRecycler)
	defer cancelRecycler()
	consumerCh, cancelConsumer := f.bus.Subscribe(events.ChannelConsumer)
	defer cancelConsumer()

	_, err := f.svc.Register(context.Background(), "0xaa", registry.RoleRecycler)
	require.NoError(t, err)

	select {
	case ev := <-globalCh:
		assert.Equal(t, events.KindUserRegistered, ev.Kind)
	default:
		t.Fatal("expected event on global channel")
	}
	select {
	case ev := <-recyclerCh:
		assert.Equal(t, "recycler", ev.Role)
	default:
		t.Fatal("expected event on recycler channel")
	}
	select {
	case <-consumerCh:
		t.Fatal("unexpected event on consumer channel")
	default:
	}
}

func TestService_HasRole_UnknownWallet(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.HasRole(context.Background(), "0xnobody", registry.RoleManufacturer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_IsRegistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.IsRegistered(ctx, "0xaa")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Register(ctx, "0xaa", registry.RoleConsumer)
	require.NoError(t, err)

	ok, err = f.svc.IsRegistered(ctx, "0xAA")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_Get_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), "0xnobody")
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeNotFound, domainerr.CodeOf(err))
}

func TestParseRole(t *testing.T) {
	role, err := registry.ParseRole("Manufacturer")
	require.NoError(t, err)
	assert.Equal(t, registry.RoleManufacturer, role)

	_, err = registry.ParseRole("admin")
	require.Error(t, err)
	assert.Equal(t, domainerr.CodeBadRequest, domainerr.CodeOf(err))
}
