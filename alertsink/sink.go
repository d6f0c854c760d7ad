package alertsink

import (
	"context"
	"sync"
	"time"

	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
)

// Forwarder delivers one assembled Alert to an external collaborator.
// This package ships two concrete implementations, ClickHouseForwarder and
// StdoutForwarder; tests use a stub.
type Forwarder interface {
	Forward(ctx context.Context, alert model.Alert) error
}

// Sink is a bounded, single-worker delivery queue: Push never blocks the
// caller (the fusion/pipeline hot path), and the background worker retries
// each delivery with exponential backoff before giving up. Grounded on the
// teacher's database/writer.go BulkWriter, whose channel-plus-worker shape
// this reproduces without the multi-worker batch-balancing logic that
// spec's single-alert-at-a-time delivery model doesn't need.
type Sink struct {
	cfg       config.AlertSinkConfig
	forwarder Forwarder
	metrics   *metrics.Registry

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []model.Alert
	closed bool
	done   chan struct{}
}

// NewSink starts the background delivery worker and returns a Sink ready
// to accept alerts.
func NewSink(cfg config.AlertSinkConfig, forwarder Forwarder, reg *metrics.Registry) *Sink {
	s := &Sink{
		cfg:       cfg,
		forwarder: forwarder,
		metrics:   reg,
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// QueueDepth reports the number of alerts currently queued for delivery,
// for tests and diagnostics.
func (s *Sink) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Push enqueues alert for delivery. If the queue is already at capacity,
// the oldest queued alert is dropped to make room, and the drop is
// counted, matching spec §7's bounded-queue backpressure rule.
func (s *Sink) Push(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if len(s.queue) >= s.cfg.QueueCapacity {
		s.queue = s.queue[1:]
		s.metrics.IncDroppedAlert()
	}
	s.queue = append(s.queue, alert)
	s.metrics.SetAlertQueueDepth(len(s.queue))
	s.cond.Signal()
}

// run drains the queue one alert at a time until Close is called and the
// queue empties.
func (s *Sink) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.done)
			return
		}

		alert := s.queue[0]
		s.queue = s.queue[1:]
		s.metrics.SetAlertQueueDepth(len(s.queue))
		s.mu.Unlock()

		s.deliver(alert)
	}
}

// deliver attempts forwarder.Forward with exponential backoff, doubling
// from BackoffInitial up to BackoffMax, giving up after BackoffMaxRetries
// retries (BackoffMaxRetries+1 attempts in all) and counting the failure.
func (s *Sink) deliver(alert model.Alert) {
	log := logger.WithComponent("alertsink")
	backoff := s.cfg.BackoffInitial

	for attempt := 0; attempt <= s.cfg.BackoffMaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExternalTimeout)
		err := s.forwarder.Forward(ctx, alert)
		cancel()

		if err == nil {
			return
		}

		log.Warn().Err(err).Str("alert_id", alert.AlertID).Int("attempt", attempt).Msg("alert delivery failed")

		if attempt == s.cfg.BackoffMaxRetries {
			s.metrics.IncPushFailure()
			return
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}
}

// Close stops accepting new alerts and waits up to FlushDeadline for the
// queue to drain before returning.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(s.cfg.FlushDeadline):
		logger.WithComponent("alertsink").Warn().Msg("flush deadline exceeded, undelivered alerts remain queued")
	}
}
