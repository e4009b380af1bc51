// Package hitevents publishes one event per completed lookup to Kafka.
package hitevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
)

type Event struct {
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider"`
	Lat       float64   `json:"lat,omitempty"`
	Lng       float64   `json:"lng,omitempty"`
	Cell      string    `json:"cell,omitempty"`
	PlaceID   string    `json:"place_id,omitempty"`
	CacheHit  bool      `json:"cache_hit"`
	State     string    `json:"state"`
	RequestID string    `json:"request_id,omitempty"`
	TS        time.Time `json:"ts"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

type Noop struct{}

func (Noop) Publish(Event) {}
func (Noop) Close() error  { return nil }

type KafkaPublisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	return cfg
}

func NewKafkaPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*KafkaPublisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("hitevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, log), nil
}

// NewWithProducer wraps an existing producer; the publisher owns it afterwards.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &KafkaPublisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		log:     log,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("hitevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Provider + ":" + ev.Kind),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("hitevents: producer error", "err", err.Err, "topic", p.topic)
			}
		}
	}()

	return p
}

// Publish enqueues ev, dropping it when the queue is full.
func (p *KafkaPublisher) Publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		observability.IncEventsDropped()
	}
}

// Close flushes queued events and shuts the producer down. Publish must not
// be called afterwards.
func (p *KafkaPublisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("hitevents: close producer: %w", err)
	}
	return nil
}
