// Package notify forwards session events to a Kafka topic so downstream
// consumers (UI gateways, risk dashboards, reconciliation jobs) can follow an
// account without sharing its process.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/session"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer that keys messages by account
// so one account's events stay on one partition, in order.
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

type Kafka struct {
	w       Writer
	log     zerolog.Logger
	timeout time.Duration
}

func NewKafka(w Writer, log zerolog.Logger) *Kafka {
	return &Kafka{
		w:       w,
		log:     log.With().Str("component", "notify").Logger(),
		timeout: 5 * time.Second,
	}
}

// Publish writes one event as JSON, keyed by account id.
func (k *Kafka) Publish(ctx context.Context, evt session.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(evt.Account),
		Value: payload,
		Time:  evt.Time,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	})
}

// Run forwards bus events until ctx ends. A failed write is logged and the
// event is dropped; the session is never held up by the broker.
func (k *Kafka) Run(ctx context.Context, bus *session.Bus) error {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub:
			if !ok {
				return nil
			}
			if err := k.Publish(ctx, evt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				k.log.Error().Err(err).Str("event", string(evt.Type)).Str("account", evt.Account).Msg("event not published")
			}
		}
	}
}

func (k *Kafka) Close() error { return k.w.Close() }
