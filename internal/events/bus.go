package events

import (
	"log/slog"
	"sync"

	"ecotrace/internal/platform/metrics"
)

const defaultSubscriberBuffer = 16

// Bus fans committed events out to live subscribers, grouped by channel.
// Delivery is best-effort and at-most-once: a subscriber that is absent or
// slow at publish time misses the event. The projection, not this bus, is
// the durable source for catch-up reads.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[int64]chan Event
	nextID  int64
	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBus builds a bus. metrics may be nil in tests.
func NewBus(logger *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		subs:    make(map[string]map[int64]chan Event),
		buffer:  defaultSubscriberBuffer,
		logger:  logger,
		metrics: m,
	}
}

// Publish delivers the event to every subscriber of every interested
// channel. Sends never block: a full subscriber buffer drops the event for
// that subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, channel := range ev.Channels() {
		for _, ch := range b.subs[channel] {
			select {
			case ch <- ev:
				if b.metrics != nil {
					b.metrics.EventsPublished.WithLabelValues(channel).Inc()
				}
			default:
				if b.metrics != nil {
					b.metrics.EventsDropped.WithLabelValues(channel).Inc()
				}
				b.logger.Warn("dropping event for slow subscriber",
					"channel", channel,
					"kind", string(ev.Kind),
					"ledger_id", ev.LedgerID,
				)
			}
		}
	}
}

// Subscribe registers a live subscriber on a channel. The returned cancel
// function must be called to release the subscription; the event channel is
// closed by cancel.
func (b *Bus) Subscribe(channel string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int64]chan Event)
	}
	b.subs[channel][id] = ch
	if b.metrics != nil {
		b.metrics.Subscribers.WithLabelValues(channel).Inc()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[channel], id)
			close(ch)
			if b.metrics != nil {
				b.metrics.Subscribers.WithLabelValues(channel).Dec()
			}
		})
	}
	return ch, cancel
}
