package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/config"
	"github.com/couchcryptid/quake-notifier/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes delivery audit records to a Kafka topic.
// It implements dispatch.DeliveryRecorder.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured audit topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// RecordDeliveries publishes the records of one user's delivery in a single
// WriteMessages call. Records are keyed by user so one user's history stays
// on one partition.
func (w *Writer) RecordDeliveries(ctx context.Context, records []domain.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish delivery records: %w", err)
	}
	w.logger.Debug("delivery records published", "user_id", records[0].UserID, "count", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a DeliveryRecord into a Kafka message.
func serializeToMessage(record domain.DeliveryRecord) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize delivery record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.UserID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "card_kind", Value: []byte(cardKind(record))},
			{Key: "has_map_image", Value: []byte(strconv.FormatBool(record.HasMapImage))},
			{Key: "delivered_at", Value: []byte(record.DeliveredAt.Format(time.RFC3339))},
		},
	}, nil
}

func cardKind(record domain.DeliveryRecord) string {
	switch {
	case record.IsBundleCover:
		return "cover"
	case record.BundleID != "":
		return "bundled"
	default:
		return "single"
	}
}
