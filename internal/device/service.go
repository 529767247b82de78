package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ecotrace/internal/counter"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/platform/metrics"
	"ecotrace/internal/projection"
	"ecotrace/internal/registry"
	"ecotrace/pkg/domainerr"
	"ecotrace/pkg/sentinel"
)

// RoleRegistry is the slice of the registry service this package needs for
// authorization checks.
type RoleRegistry interface {
	HasRole(ctx context.Context, wallet string, role registry.Role) (bool, error)
	IsRegistered(ctx context.Context, wallet string) (bool, error)
}

// Service runs the device lifecycle state machine. Every mutation is
// committed to the ledger first, then applied to the projection through the
// bridge and fanned out on the bus.
type Service struct {
	store   Store
	roles   RoleRegistry
	ledger  ledger.Ledger
	bridge  *projection.Bridge
	bus     *events.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewService wires the service and registers its projection appliers.
func NewService(
	store Store,
	roles RoleRegistry,
	led ledger.Ledger,
	bridge *projection.Bridge,
	bus *events.Bus,
	logger *slog.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
) *Service {
	s := &Service{
		store:   store,
		roles:   roles,
		ledger:  led,
		bridge:  bridge,
		bus:     bus,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
	bridge.Register(events.KindDeviceRegistered, s.applyRegistered)
	bridge.Register(events.KindOwnershipTransferred, s.applyTransferred)
	bridge.Register(events.KindStatusUpdated, s.applyStatusUpdated)
	return s
}

// Register creates a device for a manufacturer wallet. The ledger allocates
// the device ID; the created device starts manufactured and owned by its
// manufacturer.
func (s *Service) Register(ctx context.Context, spec Specification, rfidTag, manufacturerWallet string) (*Device, error) {
	done := s.observe("register_device")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet := registry.NormalizeWallet(manufacturerWallet)
	ok, err := s.roles.HasRole(ctx, wallet, registry.RoleManufacturer)
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "check manufacturer role"))
	}
	if !ok {
		return nil, done(domainerr.New(domainerr.CodeUnauthorizedRole, "wallet not registered as manufacturer"))
	}

	payload := RegisteredPayload{
		Specification:      spec,
		RFIDTag:            rfidTag,
		ManufacturerWallet: wallet,
		RegisteredAt:       time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "encode registration", err))
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:      ledger.OpRegisterDevice,
		Wallet:    wallet,
		Namespace: counter.NamespaceDevice,
		Payload:   raw,
	})
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "commit device registration"))
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindDeviceRegistered,
		LedgerID:    receipt.LedgerID,
		Namespace:   counter.NamespaceDevice,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Unreachable while the allocator holds its uniqueness
			// guarantee; kept as a defensive invariant.
			return nil, done(domainerr.Wrap(domainerr.CodeDuplicateDevice, "ledger id already taken", err))
		}
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "apply device registration", err))
	}
	s.bus.Publish(ev)

	return newDevice(receipt.LedgerID, payload, receipt.TxHash), done(nil)
}

// Transfer moves a device to a new registered owner. Only the current owner
// may initiate it. The very first transfer out of the manufacturer flips the
// status to in_use; later transfers record identically without touching it.
func (s *Service) Transfer(ctx context.Context, ledgerID int64, newOwnerWallet, callerWallet string) (*TransferResult, error) {
	done := s.observe("transfer_ownership")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	caller := registry.NormalizeWallet(callerWallet)
	newOwner := registry.NormalizeWallet(newOwnerWallet)

	d, err := s.store.Get(ctx, ledgerID)
	if err != nil {
		return nil, done(translateLookup(err, "device"))
	}
	if d.Status == StatusRecycled {
		return nil, done(domainerr.New(domainerr.CodeBadRequest, "device is recycled and cannot be transferred"))
	}
	if d.CurrentOwnerWallet != caller {
		return nil, done(domainerr.New(domainerr.CodeNotOwner, "only the current owner may transfer the device"))
	}
	registered, err := s.roles.IsRegistered(ctx, newOwner)
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "check recipient registration"))
	}
	if !registered {
		return nil, done(domainerr.New(domainerr.CodeRecipientNotRegistered, "transfer target wallet is not registered"))
	}

	newStatus := d.Status
	if d.Status == StatusManufactured {
		newStatus = StatusInUse
	}
	payload := TransferredPayload{
		FromWallet:    caller,
		ToWallet:      newOwner,
		NewStatus:     newStatus,
		TransferredAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "encode transfer", err))
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:     ledger.OpTransferOwnership,
		Wallet:   caller,
		LedgerID: ledgerID,
		Payload:  raw,
	})
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "commit ownership transfer"))
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindOwnershipTransferred,
		LedgerID:    ledgerID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			return nil, done(domainerr.Wrap(domainerr.CodeNotOwner, "lost transfer race: caller is no longer the current owner", err))
		}
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "apply ownership transfer", err))
	}
	s.bus.Publish(ev)

	d.CurrentOwnerWallet = newOwner
	d.Status = newStatus
	d.OwnershipHistory = append(d.OwnershipHistory, OwnershipEntry{OwnerWallet: newOwner, TransferredAt: payload.TransferredAt})
	d.TxRefs = append(d.TxRefs, receipt.TxHash)
	d.UpdatedAt = payload.TransferredAt
	return &TransferResult{Device: d, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber}, done(nil)
}

// UpdateStatus moves a device to a new lifecycle status. The two hard rules:
// recycled is terminal, and recycler-side states require the recycler role.
// Skipped intermediate states are deliberately not rejected; the ledger is
// equally permissive and the mirror must not be stricter.
func (s *Service) UpdateStatus(ctx context.Context, ledgerID int64, newStatus Status, callerWallet string) (*UpdateResult, error) {
	done := s.observe("update_status")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	caller := registry.NormalizeWallet(callerWallet)
	d, err := s.store.Get(ctx, ledgerID)
	if err != nil {
		return nil, done(translateLookup(err, "device"))
	}
	if d.Status == StatusRecycled {
		return nil, done(domainerr.New(domainerr.CodeBadRequest, "device is recycled; status is final"))
	}

	switch newStatus {
	case StatusCollected, StatusInRecycling, StatusRecycled:
		ok, err := s.roles.HasRole(ctx, caller, registry.RoleRecycler)
		if err != nil {
			return nil, done(domainerr.FromInfra(err, "check recycler role"))
		}
		if !ok {
			return nil, done(domainerr.New(domainerr.CodeUnauthorizedRole, "wallet not registered as recycler"))
		}
	default:
		if d.CurrentOwnerWallet != caller {
			return nil, done(domainerr.New(domainerr.CodeNotOwner, "only the current owner may update this status"))
		}
	}

	payload := StatusUpdatedPayload{
		FromStatus: d.Status,
		ToStatus:   newStatus,
		Wallet:     caller,
		UpdatedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "encode status update", err))
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:     ledger.OpUpdateStatus,
		Wallet:   caller,
		LedgerID: ledgerID,
		Payload:  raw,
	})
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "commit status update"))
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindStatusUpdated,
		LedgerID:    ledgerID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			return nil, done(domainerr.Wrap(domainerr.CodeBadRequest, "device status changed concurrently", err))
		}
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "apply status update", err))
	}
	s.bus.Publish(ev)

	d.Status = newStatus
	d.TxRefs = append(d.TxRefs, receipt.TxHash)
	d.UpdatedAt = payload.UpdatedAt
	return &UpdateResult{Device: d, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber}, done(nil)
}

// Get returns the device projection record.
func (s *Service) Get(ctx context.Context, ledgerID int64) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	d, err := s.store.Get(ctx, ledgerID)
	if err != nil {
		return nil, translateLookup(err, "device")
	}
	return d, nil
}

// History returns the ownership chain as wallet addresses, oldest first.
func (s *Service) History(ctx context.Context, ledgerID int64) ([]string, error) {
	d, err := s.Get(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	owners := make([]string, len(d.OwnershipHistory))
	for i, entry := range d.OwnershipHistory {
		owners[i] = entry.OwnerWallet
	}
	return owners, nil
}

// ListByOwner returns devices currently held by a wallet.
func (s *Service) ListByOwner(ctx context.Context, ownerWallet string, includeRecycled bool) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	list, err := s.store.ListByOwner(ctx, registry.NormalizeWallet(ownerWallet), includeRecycled)
	if err != nil {
		return nil, domainerr.FromInfra(err, "list devices")
	}
	return list, nil
}

// --- projection appliers ---

func (s *Service) applyRegistered(ctx context.Context, ev events.Event) error {
	var payload RegisteredPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode device registration payload: %w", err)
	}
	if err := s.store.Create(ctx, newDevice(ev.LedgerID, payload, ev.TxHash)); err != nil {
		return fmt.Errorf("create device %d: %w", ev.LedgerID, err)
	}
	return nil
}

func (s *Service) applyTransferred(ctx context.Context, ev events.Event) error {
	var payload TransferredPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	_, err := s.store.TransferOwner(ctx, ev.LedgerID, payload.FromWallet, payload.ToWallet, payload.NewStatus, ev.TxHash, payload.TransferredAt)
	if err != nil {
		return fmt.Errorf("transfer device %d: %w", ev.LedgerID, err)
	}
	return nil
}

func (s *Service) applyStatusUpdated(ctx context.Context, ev events.Event) error {
	var payload StatusUpdatedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode status update payload: %w", err)
	}
	_, err := s.store.UpdateStatus(ctx, ev.LedgerID, payload.FromStatus, payload.ToStatus, ev.TxHash, payload.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update device %d status: %w", ev.LedgerID, err)
	}
	return nil
}

func newDevice(ledgerID int64, payload RegisteredPayload, txHash string) *Device {
	return &Device{
		LedgerID:           ledgerID,
		QRCode:             QRCodeFor(ledgerID),
		RFIDTag:            payload.RFIDTag,
		Specification:      payload.Specification,
		ManufacturerWallet: payload.ManufacturerWallet,
		CurrentOwnerWallet: payload.ManufacturerWallet,
		Status:             StatusManufactured,
		OwnershipHistory: []OwnershipEntry{{
			OwnerWallet:   payload.ManufacturerWallet,
			TransferredAt: payload.RegisteredAt,
		}},
		TxRefs:    []string{txHash},
		CreatedAt: payload.RegisteredAt,
		UpdatedAt: payload.RegisteredAt,
	}
}

// observe returns a completion callback that records the operation metric
// and passes the error through unchanged.
func (s *Service) observe(kind string) func(error) error {
	start := time.Now()
	return func(err error) error {
		outcome := "ok"
		if err != nil {
			outcome = string(domainerr.CodeOf(err))
		}
		s.metrics.ObserveOperation(kind, outcome, time.Since(start))
		return err
	}
}

func translateLookup(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerr.New(domainerr.CodeNotFound, what+" does not exist")
	}
	return domainerr.FromInfra(err, "load "+what)
}
