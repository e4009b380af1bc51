// Package kafkaconsumer applies place invalidation events from Kafka to the cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/places-cache-gateway/internal/cache"
	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/keys"
	obs "github.com/mohammed-shakir/places-cache-gateway/internal/core/observability"
	"github.com/mohammed-shakir/places-cache-gateway/internal/invalidation"
	mylog "github.com/mohammed-shakir/places-cache-gateway/internal/logger"
	"github.com/mohammed-shakir/places-cache-gateway/internal/mapper"
)

type HotnessResetter interface {
	Reset(cells ...string)
}

type Options struct {
	Logger *slog.Logger
	// CacheVersion selects the details keys to evict.
	CacheVersion string
	Mapper       mapper.Interface
	Hotness      HotnessResetter
	H3Res        int
}

type Consumer struct {
	cfg   Config
	opts  Options
	log   *slog.Logger
	store cache.Store
	seen  *tsDedupe

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg Config, store cache.Store, opts Options) *Consumer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheVersion == "" {
		opts.CacheVersion = "v1"
	}
	return &Consumer{
		cfg:    cfg,
		opts:   opts,
		log:    opts.Logger,
		store:  store,
		seen:   newTSDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

// Start joins the consumer group and consumes in the background until ctx
// ends or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: cache store is required")
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	scfg := sarama.NewConfig()
	scfg.Version = sarama.V2_5_0_0
	scfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	scfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	scfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		scfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		scfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	scfg.Consumer.Offsets.AutoCommit.Enable = true
	scfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, scfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	c.run(ctx, group)
	return nil
}

func (c *Consumer) run(ctx context.Context, group sarama.ConsumerGroup) {
	ctx, cancel := context.WithCancel(mylog.WithComponent(ctx, "kafka_consumer"))
	c.cancel = cancel

	h := c.handler()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.log.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil && ctx.Err() == nil {
				obs.IncKafkaConsumerError("consume")
				c.log.ErrorContext(ctx, "kafka consume error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			obs.IncKafkaConsumerError("group")
			c.log.Error("kafka group error", "err", err)
		}
	}()

	c.log.Info("kafka invalidation consumer started",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			c.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assigned.Store(true)
			c.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			c.assigned.Store(false)
			c.assign = map[int32]struct{}{}
			c.assignMu.Unlock()
		},
		process: c.ProcessOne,
	}
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Info("kafka invalidation consumer stopped")
}

// Readiness reports whether the group currently holds partitions.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// ProcessOne applies a single message. Undecodable or invalid events are
// counted and skipped; only cache failures are returned so the offset stays
// unmarked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.log.WarnContext(ctx, "skipping undecodable invalidation",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("validate")
		c.log.WarnContext(ctx, "skipping invalid invalidation",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	dk := ev.DedupeKey()
	ts := ev.TS.UnixMilli()
	if c.seen.stale(dk, ts) {
		obs.ObserveInvalidation("skip_replay", nil)
		c.log.DebugContext(ctx, "replayed invalidation skipped", "provider", ev.Provider, "place_id", ev.PlaceID)
		return nil
	}

	key := keys.DetailsKey(ev.PlaceID, ev.Provider, c.opts.CacheVersion)
	if err := c.store.Delete(ctx, key); err != nil {
		obs.IncKafkaConsumerError("cache_del")
		obs.ObserveInvalidation(ev.Op, err)
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	c.seen.applied(dk, ts)
	obs.ObserveInvalidation(ev.Op, nil)

	if cell := c.cellFor(ev); cell != "" {
		c.opts.Hotness.Reset(cell)
	}
	c.log.DebugContext(ctx, "invalidated place details",
		"op", ev.Op, "provider", ev.Provider, "place_id", ev.PlaceID, "key", key)
	return nil
}

func (c *Consumer) cellFor(ev invalidation.Event) string {
	if ev.Location == nil || c.opts.Mapper == nil || c.opts.Hotness == nil {
		return ""
	}
	cell, err := c.opts.Mapper.CellForPoint(ev.Location.Lat, ev.Location.Lng, c.opts.H3Res)
	if err != nil {
		c.log.Debug("cell lookup failed", "err", err)
		return ""
	}
	return cell
}
