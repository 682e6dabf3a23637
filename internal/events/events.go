// Package events publishes observability events about calls made through the
// unified connector service.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const TypeUCSCall = "ucs_call"

// Event is the schema published for every bridge call. Request and Response
// are masked before they get here.
type Event struct {
	EventType  string          `json:"event_type"`
	Operation  string          `json:"operation"`
	Connector  string          `json:"connector"`
	MerchantID string          `json:"merchant_id"`
	PaymentID  string          `json:"payment_id"`
	AttemptID  string          `json:"attempt_id"`
	RequestID  string          `json:"request_id"`
	StatusCode int             `json:"status_code"`
	LatencyMs  int64           `json:"latency_ms"`
	Success    bool            `json:"success"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink receives events. Emit must not block the payment path for long and
// its failures never fail a payment.
type Sink interface {
	Emit(ctx context.Context, evt Event) error
}

// Producer writes events to Kafka keyed by payment id so one payment's
// events stay ordered within a partition.
type Producer struct {
	w     *kafka.Writer
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				log.Error().Msgf("kafka: "+msg, args...)
			}),
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Emit writes a single message
func (p *Producer) Emit(ctx context.Context, evt Event) error {
	val, err := encode(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(evt.PaymentID),
		Value: val,
	})
}

// LogSink writes events to the application log. Used when no brokers are
// configured.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, evt Event) error {
	val, err := encode(evt)
	if err != nil {
		return err
	}
	log.Info().RawJSON("event", val).Str("event_type", evt.EventType).Msg("ucs event")
	return nil
}

func encode(evt Event) ([]byte, error) {
	if evt.EventType == "" {
		evt.EventType = TypeUCSCall
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(evt)
}
