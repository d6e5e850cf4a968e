package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/exzackley/fondogis/internal/config"
	"github.com/exzackley/fondogis/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes reconciliation units from a Kafka topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        messageFetcher
	flushInterval time.Duration
	logger        *slog.Logger
}

// messageFetcher is the subset of *kafkago.Reader the batch loop uses.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewReader creates a consumer-group reader for the configured source topic.
// Offsets are committed explicitly, after the unit's report is loaded.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaSourceTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch fetches up to batchSize messages. It returns an empty batch
// when no message arrives within the flush interval, and a partial batch once
// the flush interval has elapsed since the first message of the batch.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	batch := make([]domain.RawEvent, 0, batchSize)

	fetchCtx, cancelIdle := context.WithTimeout(ctx, r.flushInterval)
	defer cancelIdle()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return batch, nil
			}
			return nil, err
		}
		if len(batch) == 0 {
			var cancelFlush context.CancelFunc
			fetchCtx, cancelFlush = context.WithTimeout(ctx, r.flushInterval)
			defer cancelFlush()
		}
		batch = append(batch, r.mapMessage(msg))
	}
	return batch, nil
}

func (r *Reader) mapMessage(msg kafkago.Message) domain.RawEvent {
	raw := mapMessageToRawEvent(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

// Close shuts the consumer down and leaves the group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
