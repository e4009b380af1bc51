package hitevents

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublish_DeliversJSONEvent(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, NewProducerConfig())
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Kind != "nearby" || ev.Provider != "google" || !ev.CacheHit || ev.Cell != "8844c0a305fffff" {
			return errors.New("unexpected event payload: " + string(b))
		}
		return nil
	})

	p := NewWithProducer(mp, "places-lookups", 4, nil)
	p.Publish(Event{
		Kind: "nearby", Provider: "google", Lat: 27.95, Lng: -82.46,
		Cell: "8844c0a305fffff", CacheHit: true, State: "HIT_RETURNED", TS: time.Unix(1700000000, 0).UTC(),
	})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_ProducerErrorIsLoggedNotFatal(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, NewProducerConfig())
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := NewWithProducer(mp, "places-lookups", 4, nil)
	p.Publish(Event{Kind: "details", Provider: "foursquare"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

type stuckProducer struct {
	sarama.AsyncProducer
	in   chan *sarama.ProducerMessage
	errs chan *sarama.ProducerError
}

func (s *stuckProducer) Input() chan<- *sarama.ProducerMessage { return s.in }
func (s *stuckProducer) Errors() <-chan *sarama.ProducerError  { return s.errs }

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	sp := &stuckProducer{in: make(chan *sarama.ProducerMessage), errs: make(chan *sarama.ProducerError)}
	p := NewWithProducer(sp, "t", 1, nil)

	done := make(chan struct{})
	go func() {
		for range 100 {
			p.Publish(Event{Kind: "nearby"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a full queue")
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	p.Publish(Event{})
	if err := p.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}
