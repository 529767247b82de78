package recycling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ecotrace/internal/counter"
	"ecotrace/internal/device"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/platform/metrics"
	"ecotrace/internal/projection"
	"ecotrace/internal/registry"
	"ecotrace/pkg/domainerr"
	"ecotrace/pkg/sentinel"
)

// RoleRegistry is the slice of the registry service this package needs.
type RoleRegistry interface {
	HasRole(ctx context.Context, wallet string, role registry.Role) (bool, error)
}

// Devices is the slice of the device store the report workflow touches:
// ownership checks before submission and the retire-with-report write when
// the submission applies.
type Devices interface {
	Get(ctx context.Context, ledgerID int64) (*device.Device, error)
	AttachReport(ctx context.Context, ledgerID, reportID int64, ownerWallet, txHash string, at time.Time) (*device.Device, error)
}

// Service runs the recycling report workflow.
type Service struct {
	store   Store
	devices Devices
	roles   RoleRegistry
	ledger  ledger.Ledger
	bridge  *projection.Bridge
	bus     *events.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewService(
	store Store,
	devices Devices,
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
		devices: devices,
		roles:   roles,
		ledger:  led,
		bridge:  bridge,
		bus:     bus,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
	bridge.Register(events.KindReportSubmitted, s.applySubmitted)
	bridge.Register(events.KindReportVerified, s.applyVerified)
	return s
}

// Submit files a recycling report for a device the recycler currently holds.
// The ledger allocates the report ID; applying the submission retires the
// device and links the report to it.
func (s *Service) Submit(ctx context.Context, deviceLedgerID int64, weightGrams float64, components, recyclerWallet string) (*Report, error) {
	done := s.observe("submit_report")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet := registry.NormalizeWallet(recyclerWallet)
	ok, err := s.roles.HasRole(ctx, wallet, registry.RoleRecycler)
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "check recycler role"))
	}
	if !ok {
		return nil, done(domainerr.New(domainerr.CodeUnauthorizedRole, "wallet not registered as recycler"))
	}

	d, err := s.devices.Get(ctx, deviceLedgerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, done(domainerr.New(domainerr.CodeNotFound, "device does not exist"))
		}
		return nil, done(domainerr.FromInfra(err, "load device"))
	}
	if d.CurrentOwnerWallet != wallet {
		return nil, done(domainerr.New(domainerr.CodeNotOwner, "device is not held by the recycler"))
	}
	if d.Status == device.StatusRecycled || d.RecyclingReportID != 0 {
		return nil, done(domainerr.New(domainerr.CodeDuplicateReport, "device already has a recycling report"))
	}

	payload := SubmittedPayload{
		DeviceLedgerID: deviceLedgerID,
		RecyclerWallet: wallet,
		WeightGrams:    weightGrams,
		Components:     components,
		SubmittedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "encode report", err))
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:      ledger.OpSubmitReport,
		Wallet:    wallet,
		Namespace: counter.NamespaceReport,
		Payload:   raw,
	})
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "commit report submission"))
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindReportSubmitted,
		LedgerID:    receipt.LedgerID,
		Namespace:   counter.NamespaceReport,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			return nil, done(domainerr.Wrap(domainerr.CodeDuplicateReport, "lost submission race: device changed hands or was retired", err))
		}
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "apply report submission", err))
	}
	s.bus.Publish(ev)

	return newReport(receipt.LedgerID, payload, receipt.TxHash), done(nil)
}

// Verify marks a report verified exactly once. A second call, or losing the
// race to a concurrent regulator, fails with AlreadyVerified.
func (s *Service) Verify(ctx context.Context, reportLedgerID int64, regulatorWallet string) (*VerifyResult, error) {
	done := s.observe("verify_report")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet := registry.NormalizeWallet(regulatorWallet)
	ok, err := s.roles.HasRole(ctx, wallet, registry.RoleRegulator)
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "check regulator role"))
	}
	if !ok {
		return nil, done(domainerr.New(domainerr.CodeUnauthorizedRole, "wallet not registered as regulator"))
	}

	r, err := s.store.Get(ctx, reportLedgerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, done(domainerr.New(domainerr.CodeNotFound, "report does not exist"))
		}
		return nil, done(domainerr.FromInfra(err, "load report"))
	}
	if r.Verified {
		return nil, done(domainerr.New(domainerr.CodeAlreadyVerified, "report is already verified"))
	}

	payload := VerifiedPayload{
		RegulatorWallet: wallet,
		VerifiedAt:      time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "encode verification", err))
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:     ledger.OpVerifyReport,
		Wallet:   wallet,
		LedgerID: reportLedgerID,
		Payload:  raw,
	})
	if err != nil {
		return nil, done(domainerr.FromInfra(err, "commit verification"))
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindReportVerified,
		LedgerID:    reportLedgerID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			return nil, done(domainerr.Wrap(domainerr.CodeAlreadyVerified, "report was verified concurrently", err))
		}
		return nil, done(domainerr.Wrap(domainerr.CodeInternal, "apply verification", err))
	}
	s.bus.Publish(ev)

	r.Verified = true
	r.VerifiedBy = wallet
	verifiedAt := payload.VerifiedAt
	r.VerifiedAt = &verifiedAt
	r.TxRefs = append(r.TxRefs, receipt.TxHash)
	return &VerifyResult{Report: r, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber}, done(nil)
}

// Get returns the report projection record.
func (s *Service) Get(ctx context.Context, reportLedgerID int64) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	r, err := s.store.Get(ctx, reportLedgerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerr.New(domainerr.CodeNotFound, "report does not exist")
	}
	if err != nil {
		return nil, domainerr.FromInfra(err, "load report")
	}
	return r, nil
}

// ListByRecycler returns reports submitted by a wallet.
func (s *Service) ListByRecycler(ctx context.Context, recyclerWallet string) ([]*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	list, err := s.store.ListByRecycler(ctx, registry.NormalizeWallet(recyclerWallet))
	if err != nil {
		return nil, domainerr.FromInfra(err, "list reports")
	}
	return list, nil
}

// --- projection appliers ---

// applySubmitted retires the device, then writes the report. The device
// update is the single-winner gate: its guard requires the device to still be
// report-free, so of two racing submissions exactly one attaches and the
// loser fails here without ever creating a report row. The two writes are not
// one transaction; a replay after a partial apply sees the device already
// retired by this very submission and re-runs the report write.
func (s *Service) applySubmitted(ctx context.Context, ev events.Event) error {
	var payload SubmittedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode submission payload: %w", err)
	}

	_, err := s.devices.AttachReport(ctx, payload.DeviceLedgerID, ev.LedgerID, payload.RecyclerWallet, ev.TxHash, payload.SubmittedAt)
	if errors.Is(err, sentinel.ErrStale) {
		d, getErr := s.devices.Get(ctx, payload.DeviceLedgerID)
		if getErr != nil || d.RecyclingReportID != ev.LedgerID {
			// Lost the race to another submission or transfer.
			return fmt.Errorf("retire device %d: %w", payload.DeviceLedgerID, err)
		}
		// Replay over a device this submission already retired.
	} else if err != nil {
		return fmt.Errorf("retire device %d: %w", payload.DeviceLedgerID, err)
	}

	if err := s.store.Create(ctx, newReport(ev.LedgerID, payload, ev.TxHash)); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return fmt.Errorf("create report %d: %w", ev.LedgerID, err)
	}
	return nil
}

func (s *Service) applyVerified(ctx context.Context, ev events.Event) error {
	var payload VerifiedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode verification payload: %w", err)
	}
	if _, err := s.store.MarkVerified(ctx, ev.LedgerID, payload.RegulatorWallet, ev.TxHash, payload.VerifiedAt); err != nil {
		return fmt.Errorf("verify report %d: %w", ev.LedgerID, err)
	}
	return nil
}

func newReport(ledgerID int64, payload SubmittedPayload, txHash string) *Report {
	return &Report{
		LedgerID:       ledgerID,
		DeviceLedgerID: payload.DeviceLedgerID,
		RecyclerWallet: payload.RecyclerWallet,
		WeightGrams:    payload.WeightGrams,
		Components:     payload.Components,
		TxRefs:         []string{txHash},
		CreatedAt:      payload.SubmittedAt,
	}
}

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
