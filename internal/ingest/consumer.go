package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
	"subgraphx/internal/domain"
	"subgraphx/internal/metrics"
	natsps "subgraphx/internal/pubsub/nats"
)

// EventProcessor is the pipeline entry point the consumer feeds.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *domain.Event) error
}

// Consumer bridges the NATS subscription to the pipeline. Messages are pushed
// into a buffered channel and drained by exactly one goroutine: the entity
// store allows a single writer, so NATS callback concurrency must not reach
// the handlers.
type Consumer struct {
	log logger.Logger
	nc  *natsps.Client
	svc EventProcessor
	cfg config.IngestConfig

	ch      chan *domain.Event
	stopCh  chan struct{}
	sub     *nats.Subscription
	started bool
	once    sync.Once
	wg      sync.WaitGroup
}

func NewConsumer(log logger.Logger, nc *natsps.Client, svc EventProcessor, cfg config.IngestConfig) *Consumer {
	if cfg.Subject == "" {
		cfg.Subject = "events.decoded"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "indexer"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}

	return &Consumer{
		log:    log,
		nc:     nc,
		svc:    svc,
		cfg:    cfg,
		ch:     make(chan *domain.Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
	}
}

// Start subscribes and launches the pipeline goroutine. ctx bounds the
// lifetime of event processing.
func (c *Consumer) Start(ctx context.Context) error {
	if c.started {
		return errors.New("consumer already started")
	}
	c.started = true

	sub, err := c.nc.QueueSubscribe(c.cfg.Subject, c.cfg.QueueGroup, c.onMessage)
	if err != nil {
		return err
	}
	c.sub = sub

	c.wg.Add(1)
	go c.run(ctx)

	c.log.Infof("Consuming events from subject=%s queue=%s", c.cfg.Subject, c.cfg.QueueGroup)
	return nil
}

// onMessage runs on the NATS delivery goroutine. A full channel blocks it,
// which is the backpressure we want.
func (c *Consumer) onMessage(data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		metrics.HandlerErrors.WithLabelValues("decode").Inc()
		c.log.Errorf("Failed to decode event payload, error=%v", err)
		return
	}

	select {
	case c.ch <- &ev:
	case <-c.stopCh:
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-c.ch:
			if err := c.svc.ProcessEvent(ctx, ev); err != nil {
				c.log.Errorf("Failed to process event %s, error=%v", ev.EventID, err)
			}
		}
	}
}

// Close unsubscribes and stops the pipeline goroutine. Events already in the
// buffer are dropped; the warm state replays them after a restart.
func (c *Consumer) Close() {
	c.once.Do(func() {
		if c.sub != nil {
			if err := c.sub.Unsubscribe(); err != nil {
				c.log.Errorf("Failed to unsubscribe, error=%v", err)
			}
		}
		close(c.stopCh)
	})
	c.wg.Wait()
}
