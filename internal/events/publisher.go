// Package events publishes import events to Kafka so that other search
// instances can drop stale catalogs.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/core/observability"
	"github.com/mohammed-shakir/campus-geo/internal/invalidation"
)

const DefaultTopic = "campus-imports"

type Publisher struct {
	topic  string
	source string
	log    *slog.Logger
	prod   sarama.AsyncProducer

	mu      sync.RWMutex
	closed  bool
	events  chan invalidation.Event
	seq     atomic.Uint64
	stopped chan struct{}
	drained sync.WaitGroup
}

// ProducerConfig is the sarama configuration NewPublisher uses.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// NewPublisher connects an async producer. source names this instance; it
// scopes event sequence numbers.
func NewPublisher(brokers []string, topic, source string, queueSize int, log *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return newPublisher(prod, topic, source, queueSize, log), nil
}

func newPublisher(prod sarama.AsyncProducer, topic, source string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		source:  source,
		log:     log,
		prod:    prod,
		events:  make(chan invalidation.Event, queueSize),
		stopped: make(chan struct{}),
	}
	// seeded from the clock so a restarted instance keeps increasing
	p.seq.Store(uint64(time.Now().UnixNano()))

	go p.loop()

	p.drained.Add(2)
	go func() {
		defer p.drained.Done()
		for err := range p.prod.Errors() {
			observability.IncEventPublished("error")
			p.log.Error("events: producer error", "err", err)
		}
	}()
	go func() {
		defer p.drained.Done()
		for range p.prod.Successes() {
			observability.IncEventPublished("ok")
		}
	}()
	return p
}

func (p *Publisher) loop() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			observability.IncEventPublished("error")
			p.log.Error("events: marshal", "err", err)
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.PartitionKey()),
			Value: sarama.ByteEncoder(b),
		}
	}
}

// PublishImport queues an import event. It never blocks; a full queue or a
// closed publisher drops the event and returns false.
func (p *Publisher) PublishImport(scope model.ScopeID, kind model.Kind, slugs []string) bool {
	ev := invalidation.NewImport(scope, kind, slugs, time.Now())
	ev.Source = p.source
	ev.Seq = p.seq.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncEventPublished("dropped")
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		observability.IncEventPublished("dropped")
		p.log.Warn("events: queue full, dropping import event", "scope", scope, "kind", kind)
		return false
	}
}

// Close flushes queued events and shuts the producer down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	p.drained.Wait()
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
