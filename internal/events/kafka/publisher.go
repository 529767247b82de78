// Package kafka mirrors the committed event stream to a Kafka topic. The
// publisher is one more bus subscriber: a broker outage costs durable fan-out
// only and never blocks the projection write path.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ecotrace/internal/counter"
	"ecotrace/internal/events"
)

// Publisher forwards committed events to a Kafka topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to the brokers and ensures the topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	_, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// Run subscribes to the global feed and forwards until the context ends.
func (p *Publisher) Run(ctx context.Context, bus *events.Bus) error {
	ch, cancel := bus.Subscribe(events.ChannelGlobal)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			p.publish(ctx, ev)
		}
	}
}

// publish produces one event. Records for the same entity share a key so the
// topic preserves per-entity order; failures are logged and dropped, matching
// the bus's best-effort contract.
func (p *Publisher) publish(ctx context.Context, ev events.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode event for kafka", "kind", string(ev.Kind), "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(recordKey(ev)),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to produce event",
				"kind", string(ev.Kind),
				"tx_hash", ev.TxHash,
				"error", err,
			)
		}
	})
}

// recordKey names the entity an event belongs to. Allocating events carry
// their namespace; follow-up events (transfers, status changes, verification)
// do not, so the namespace is derived from the kind. Events without a ledger
// ID key by tx hash.
func recordKey(ev events.Event) string {
	ns := ev.Namespace
	if ns == "" {
		switch ev.Kind {
		case events.KindOwnershipTransferred, events.KindStatusUpdated:
			ns = counter.NamespaceDevice
		case events.KindReportVerified:
			ns = counter.NamespaceReport
		}
	}
	if ns == "" || ev.LedgerID == 0 {
		return ev.TxHash
	}
	return ns + ":" + strconv.FormatInt(ev.LedgerID, 10)
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	p.client.Close()
	return nil
}
