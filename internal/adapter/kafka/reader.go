package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes delivery audit records, used by quakectl to tail the
// audit stream.
type Reader struct {
	reader *kafkago.Reader
}

// NewReader creates a consumer for topic. An empty groupID reads the
// partition directly from the first offset.
func NewReader(brokers []string, topic, groupID string) (*Reader, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka reader requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka reader requires a topic")
	}
	cfg := kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	}
	if groupID == "" {
		cfg.StartOffset = kafkago.FirstOffset
	}
	return &Reader{reader: kafkago.NewReader(cfg)}, nil
}

// Poll reads up to max records, returning early when no message arrives
// within idle.
func (r *Reader) Poll(ctx context.Context, max int, idle time.Duration) ([]domain.DeliveryRecord, error) {
	if max <= 0 {
		max = 1
	}
	out := make([]domain.DeliveryRecord, 0, max)
	for range max {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := r.reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return out, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				return out, nil
			default:
				return out, err
			}
		}
		record, err := deserializeMessage(msg)
		if err != nil {
			return out, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func deserializeMessage(msg kafkago.Message) (domain.DeliveryRecord, error) {
	var record domain.DeliveryRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("decode delivery record at offset %d: %w", msg.Offset, err)
	}
	return record, nil
}
