package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"vitaex/internal/event"
)

// Kafka implements Log on franz-go. Records are keyed by the event's partition
// key, so Kafka's per-partition ordering gives per-subject ordering within a
// topic. Commits happen only after the handler returns nil, which yields
// at-least-once delivery.
type Kafka struct {
	brokers []string
	logger  *slog.Logger

	producer *kgo.Client

	mu        sync.Mutex
	consumers []*kgo.Client
}

// NewKafka connects a producer client immediately; consumer clients are
// created per subscription so each consumer group owns its own session.
func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if err := producer.Ping(context.Background()); err != nil {
		producer.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}
	return &Kafka{brokers: brokers, logger: logger, producer: producer}, nil
}

func (k *Kafka) Publish(ctx context.Context, ev event.Event) error {
	value, err := ev.Encode()
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: ev.Topic,
		Key:   []byte(ev.Key()),
		Value: value,
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish to %s: %w", ev.Topic, err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, group string, topics []string, fn Handler) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return fmt.Errorf("create kafka consumer for group %s: %w", group, err)
	}
	k.mu.Lock()
	k.consumers = append(k.consumers, client)
	k.mu.Unlock()

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		// Records within a partition are processed sequentially so
		// per-subject publish order is preserved.
		var processed []*kgo.Record
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				ev, err := event.Decode(record.Value)
				if err != nil {
					// Malformed records cannot succeed on
					// redelivery; log and move on.
					k.logger.Error("skipping undecodable record",
						"topic", record.Topic, "error", err)
					processed = append(processed, record)
					continue
				}
				if err := k.handleWithRedelivery(ctx, fn, ev); err != nil {
					return
				}
				processed = append(processed, record)
			}
		})
		if len(processed) > 0 {
			if err := client.CommitRecords(ctx, processed...); err != nil {
				k.logger.Error("kafka commit failed", "group", group, "error", err)
			}
		}
	}
}

// handleWithRedelivery retries fn in place until it succeeds or ctx ends. The
// agent runtime bounds real attempts; this loop only bridges transient
// handler errors without committing past them.
func (k *Kafka) handleWithRedelivery(ctx context.Context, fn Handler, ev event.Event) error {
	for {
		err := fn(ctx, ev)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (k *Kafka) Health(ctx context.Context) error {
	return k.producer.Ping(ctx)
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	consumers := k.consumers
	k.consumers = nil
	k.mu.Unlock()
	for _, c := range consumers {
		c.Close()
	}
	k.producer.Close()
	return nil
}
