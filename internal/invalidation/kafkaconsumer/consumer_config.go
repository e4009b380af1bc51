package kafkaconsumer

import (
	"errors"
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds the per-place replay filter.
	DedupeSize int
}

// DefaultConfig fills the group timings used in production.
func DefaultConfig(brokers []string, topic, group string) Config {
	if topic == "" {
		topic = "places-invalidation"
	}
	if group == "" {
		group = "places-cache-invalidator"
	}
	return Config{
		Brokers:             brokers,
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		DedupeSize:          8192,
	}
}

func (c Config) validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.New("kafkaconsumer: no brokers configured")
	case c.Topic == "":
		return errors.New("kafkaconsumer: topic is required")
	case c.GroupID == "":
		return errors.New("kafkaconsumer: group id is required")
	}
	return nil
}
