package kafka

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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/core/observability"
	"github.com/mohammed-shakir/campus-geo/internal/invalidation"
)

// Invalidator drops whatever is cached for one (scope, kind).
type Invalidator interface {
	Invalidate(scope model.ScopeID, kind model.Kind)
}

type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	inv      Invalidator
	ms       *metricSet
	seq      *seqDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg InvalidationConfig, inv Invalidator, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		inv:    inv,
		ms:     newMetricSet(opts.Register),
		seq:    newSeqDedupe(8192),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Enabled() bool {
	return r.cfg.Enabled && r.cfg.Driver == DriverKafka
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.inv == nil {
		return errors.New("kafka runner: invalidator dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.setAssignment(sess.Claims())
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.setAssignment(nil)
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
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

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) setAssignment(claims map[string][]int32) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assign = map[int32]struct{}{}
	for _, parts := range claims {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
	r.assigned.Store(claims != nil)
}

// Readiness reports whether the group session currently holds partitions.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// handleMessage applies one import event. Malformed events are counted and
// skipped so they cannot wedge the partition.
func (r *Runner) handleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		lag := time.Since(msg.Timestamp).Seconds()
		r.ms.lagGauge.Set(lag)
		observability.SetInvalidationLagSeconds(lag)
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.Warn("skipping undecodable invalidation event",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.Warn("skipping invalid invalidation event",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	r.apply(ev)
	r.ms.msgs.WithLabelValues("ok").Inc()
	r.ms.proc.WithLabelValues(ev.Op).Observe(time.Since(start).Seconds())
	return nil
}

func (r *Runner) apply(ev invalidation.Event) {
	if !r.seq.shouldApply(ev.DedupeKey(), ev.Seq) {
		r.ms.apply.WithLabelValues("skip_seq").Inc()
		return
	}
	scope, kind := ev.Target()
	r.inv.Invalidate(scope, kind)
	r.ms.apply.WithLabelValues("invalidate").Inc()
	observability.SetCatalogInvalidatedAt(string(scope), string(kind), float64(ev.TS.Unix()))
	r.log.Debug("catalog invalidated", "scope", scope, "kind", kind, "imported", ev.Imported, "seq", ev.Seq)
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
