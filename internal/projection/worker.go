package projection

import (
	"context"
	"log/slog"
	"time"

	"ecotrace/internal/events"
)

const (
	defaultMaxAttempts  = 5
	defaultInitialDelay = 250 * time.Millisecond
	maxRetryDelay       = 30 * time.Second
)

// Worker drains the bridge's retry queue in the background. Each event is
// retried with capped exponential backoff; exhausting the attempts escalates
// a reconciliation error instead of dropping the event silently.
type Worker struct {
	bridge       *Bridge
	logger       *slog.Logger
	maxAttempts  int
	initialDelay time.Duration
}

// NewWorker builds a retry worker for the bridge.
func NewWorker(bridge *Bridge, logger *slog.Logger) *Worker {
	return &Worker{
		bridge:       bridge,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
	}
}

// Run consumes the retry queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.bridge.retry:
			w.retry(ctx, ev)
		}
	}
}

func (w *Worker) retry(ctx context.Context, ev events.Event) {
	delay := w.initialDelay
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := w.bridge.Apply(ctx, ev)
		if err == nil {
			w.logger.InfoContext(ctx, "projection apply recovered",
				"tx_hash", ev.TxHash,
				"attempt", attempt,
			)
			return
		}
		if w.bridge.metrics != nil {
			w.bridge.metrics.RetriesTotal.Inc()
		}
		w.logger.WarnContext(ctx, "projection retry failed",
			"tx_hash", ev.TxHash,
			"attempt", attempt,
			"error", err,
		)
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	w.bridge.escalate(ctx, ev, ErrReconciliation)
}
