package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/exzackley/fondogis/internal/config"
	"github.com/exzackley/fondogis/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes multiple reports to the sink topic in a
// single WriteMessages call. Reports are keyed by id, so with hash balancing
// every revision of a report lands on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message.
func serializeToMessage(report domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(report.Region)},
			{Key: "indicator", Value: []byte(report.Indicator)},
			{Key: "verdict", Value: []byte(report.Comparison.Summary.Verdict)},
			{Key: "model_version", Value: []byte(report.ModelVersion)},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
