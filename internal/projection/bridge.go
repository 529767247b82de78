// Package projection keeps the off-chain mirror consistent with the ledger.
// The bridge applies every committed event exactly once, retries infra
// failures for events the ledger has already accepted, and resynchronizes
// after restarts by replaying missing commitments. The ledger is the source
// of truth and is never rolled back to match the projection.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ecotrace/internal/counter"
	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/projection/metrics"
	"ecotrace/pkg/sentinel"
)

// ApplierFunc applies one decoded event to the owning component's store.
// Each domain service registers one per event kind it owns; the bridge never
// touches another component's storage directly.
type ApplierFunc func(ctx context.Context, ev events.Event) error

// ErrReconciliation marks an event the bridge gave up on. It must reach an
// operator-visible channel; silent loss between ledger and projection is the
// one failure this design may never produce.
var ErrReconciliation = errors.New("projection reconciliation failed")

const retryQueueSize = 256

// Bridge synchronizes committed ledger effects into the projection.
type Bridge struct {
	mu       sync.RWMutex
	appliers map[events.Kind]ApplierFunc

	log     ApplyLog
	ledger  ledger.Ledger
	alloc   counter.Allocator
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	retry chan events.Event
}

// New builds a bridge. metrics may be nil in tests.
func New(log ApplyLog, led ledger.Ledger, alloc counter.Allocator, logger *slog.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		appliers: make(map[events.Kind]ApplierFunc),
		log:      log,
		ledger:   led,
		alloc:    alloc,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("ecotrace/projection"),
		retry:    make(chan events.Event, retryQueueSize),
	}
}

// Register binds an applier to an event kind. Called once per kind during
// wiring, before any traffic.
func (b *Bridge) Register(kind events.Kind, fn ApplierFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appliers[kind] = fn
}

// Apply applies one committed event exactly once, keyed by its commitment
// reference. Reapplying an already-applied event is a no-op, not an error:
// the event source may deliver at least once.
func (b *Bridge) Apply(ctx context.Context, ev events.Event) error {
	ctx, span := b.tracer.Start(ctx, "projection.apply")
	defer span.End()

	fresh, err := b.log.Record(ctx, ev.TxHash, ev.Namespace, ev.LedgerID)
	if err != nil {
		b.metrics.ObserveApply("error")
		return fmt.Errorf("record %s: %v: %w", ev.TxHash, err, sentinel.ErrUnavailable)
	}
	if !fresh {
		b.metrics.ObserveApply("duplicate")
		return nil
	}

	b.mu.RLock()
	fn := b.appliers[ev.Kind]
	b.mu.RUnlock()
	if fn == nil {
		// Leave the record in place: an event nobody owns is a wiring
		// bug, not something a retry can fix.
		b.metrics.ObserveApply("error")
		return fmt.Errorf("no applier registered for event kind %q", ev.Kind)
	}

	if err := fn(ctx, ev); err != nil {
		if removeErr := b.log.Remove(ctx, ev.TxHash); removeErr != nil {
			b.logger.ErrorContext(ctx, "failed to unrecord event after apply failure",
				"tx_hash", ev.TxHash,
				"error", removeErr,
			)
		}
		b.metrics.ObserveApply("error")
		return fmt.Errorf("apply %s %s: %w", ev.Kind, ev.TxHash, err)
	}
	b.metrics.ObserveApply("applied")
	return nil
}

// ApplyOrRetry applies an event whose ledger commit already happened.
// Infrastructure failures are not surfaced to the calling operation — the
// mutation succeeded the moment the ledger accepted it — so those events go
// to the retry worker under the same idempotency key and nil is returned.
// Permanent failures (a stale state guard, an undecodable payload) come back
// to the caller: no retry can fix them.
func (b *Bridge) ApplyOrRetry(ctx context.Context, ev events.Event) error {
	err := b.Apply(ctx, ev)
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		b.logger.WarnContext(ctx, "projection apply failed, scheduling retry",
			"kind", string(ev.Kind),
			"tx_hash", ev.TxHash,
			"error", err,
		)
		select {
		case b.retry <- ev:
		default:
			b.escalate(ctx, ev, errors.New("retry queue full"))
		}
		return nil
	}
	return err
}

// Resync detects divergence between the projection and the ledger for each
// counter namespace and replays the missing commitments in order. Run at
// startup before serving traffic.
func (b *Bridge) Resync(ctx context.Context) error {
	ctx, span := b.tracer.Start(ctx, "projection.resync")
	defer span.End()

	for _, namespace := range []string{counter.NamespaceDevice, counter.NamespaceReport} {
		highWater, err := b.alloc.Current(ctx, namespace)
		if err != nil {
			return fmt.Errorf("read %s high-water mark: %w", namespace, err)
		}
		applied, err := b.log.MaxLedgerID(ctx, namespace)
		if err != nil {
			return fmt.Errorf("read %s applied mark: %w", namespace, err)
		}
		if applied >= highWater {
			continue
		}

		b.logger.InfoContext(ctx, "projection behind ledger, replaying",
			"namespace", namespace,
			"applied", applied,
			"high_water", highWater,
		)
		committed, err := b.ledger.Replay(ctx, namespace, applied+1, highWater)
		if err != nil {
			return fmt.Errorf("replay %s [%d,%d]: %w", namespace, applied+1, highWater, err)
		}
		for _, c := range committed {
			if err := b.Apply(ctx, toEvent(c)); err != nil {
				return fmt.Errorf("%w: replay %s: %v", ErrReconciliation, c.Receipt.TxHash, err)
			}
			if b.metrics != nil {
				b.metrics.ResyncReplayed.Inc()
			}
		}
	}
	return nil
}

func (b *Bridge) escalate(ctx context.Context, ev events.Event, cause error) {
	if b.metrics != nil {
		b.metrics.ReconciliationErrors.Inc()
	}
	b.logger.ErrorContext(ctx, "RECONCILIATION ERROR: committed event not reflected in projection",
		"kind", string(ev.Kind),
		"tx_hash", ev.TxHash,
		"ledger_id", ev.LedgerID,
		"error", cause,
	)
}

// toEvent rebuilds the committed event for a replayed ledger operation. The
// tx hash and payload round-trip unchanged, so appliers cannot tell a replay
// from the original delivery.
func toEvent(c ledger.Committed) events.Event {
	kind := map[ledger.OpKind]events.Kind{
		ledger.OpRegisterUser:      events.KindUserRegistered,
		ledger.OpRegisterDevice:    events.KindDeviceRegistered,
		ledger.OpTransferOwnership: events.KindOwnershipTransferred,
		ledger.OpUpdateStatus:      events.KindStatusUpdated,
		ledger.OpSubmitReport:      events.KindReportSubmitted,
		ledger.OpVerifyReport:      events.KindReportVerified,
	}[c.Op.Kind]
	return events.Event{
		ID:          c.Receipt.TxHash,
		Kind:        kind,
		LedgerID:    c.Receipt.LedgerID,
		Namespace:   c.Op.Namespace,
		TxHash:      c.Receipt.TxHash,
		BlockNumber: c.Receipt.BlockNumber,
		Payload:     c.Op.Payload,
		OccurredAt:  c.Receipt.CommittedAt,
	}
}
