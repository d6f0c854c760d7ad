package alertsink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
	"github.com/prometheus/client_golang/prometheus"
)

func testEvent(source, eventType string) alertsink.Event {
	return alertsink.Event{
		Summary: model.EventSummary{
			Source:      source,
			Destination: "10.0.0.2",
			Type:        eventType,
			Description: "test event",
		},
		Protocols: []string{"smb"},
		Files:     []string{"secrets.txt"},
	}
}

func TestAssembleAttachesInvestigationOnlyForCritical(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	a := alertsink.NewAssembler(clk)

	critical := model.Decision{Action: model.ActionBlockImmediately, Score: 0.999, Confidence: 0.95}
	alert, ok := a.Assemble(critical, model.Detections{}, testEvent("10.0.0.1", "LATERAL_SCAN"))
	require.True(t, ok)
	require.NotNil(t, alert.Investigation)
	require.Len(t, alert.Investigation.RecommendedSteps, 5)
	require.Equal(t, "10.0.0.1", alert.Investigation.Source)

	clk.Advance(time.Minute)
	low := model.Decision{Action: model.ActionLogOnly, Score: 0.1, Confidence: 0.2}
	alert2, ok := a.Assemble(low, model.Detections{}, testEvent("10.0.0.5", "RARE_COMMUNICATION"))
	require.True(t, ok)
	require.Nil(t, alert2.Investigation)
}

func TestAssembleDedupsWithinSameMinute(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	a := alertsink.NewAssembler(clk)

	d := model.Decision{Action: model.ActionMonitorClosely, Score: 0.5, Confidence: 0.5}

	_, first := a.Assemble(d, model.Detections{}, testEvent("10.0.0.1", "ABNORMAL_FANOUT"))
	require.True(t, first)

	_, second := a.Assemble(d, model.Detections{}, testEvent("10.0.0.1", "ABNORMAL_FANOUT"))
	require.False(t, second, "same source/type within the same minute should dedup")

	clk.Advance(61 * time.Second)
	_, third := a.Assemble(d, model.Detections{}, testEvent("10.0.0.1", "ABNORMAL_FANOUT"))
	require.True(t, third, "a new minute bucket should not be deduped")
}

func TestAssembleDoesNotDedupAcrossDifferentSources(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	a := alertsink.NewAssembler(clk)
	d := model.Decision{Action: model.ActionMonitorClosely, Score: 0.5, Confidence: 0.5}

	_, first := a.Assemble(d, model.Detections{}, testEvent("10.0.0.1", "ABNORMAL_FANOUT"))
	_, second := a.Assemble(d, model.Detections{}, testEvent("10.0.0.2", "ABNORMAL_FANOUT"))
	require.True(t, first)
	require.True(t, second)
}

type stubForwarder struct {
	mu        sync.Mutex
	attempts  int
	failTimes int
	delivered []model.Alert
	gate      chan struct{}
}

func (s *stubForwarder) Forward(_ context.Context, alert model.Alert) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failTimes {
		return errors.New("simulated delivery failure")
	}
	s.delivered = append(s.delivered, alert)
	return nil
}

func testSinkConfig() config.AlertSinkConfig {
	cfg := config.GetDefaultConfig().AlertSink
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = 4 * time.Millisecond
	cfg.FlushDeadline = time.Second
	cfg.ExternalTimeout = time.Second
	return cfg
}

func TestSinkDeliversAndRetriesUntilSuccess(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	forwarder := &stubForwarder{failTimes: 2}
	sink := alertsink.NewSink(testSinkConfig(), forwarder, reg)

	sink.Push(model.Alert{AlertID: "a1"})
	sink.Close()

	forwarder.mu.Lock()
	defer forwarder.mu.Unlock()
	require.Len(t, forwarder.delivered, 1)
	require.Equal(t, "a1", forwarder.delivered[0].AlertID)
	require.Equal(t, 3, forwarder.attempts)
}

func TestSinkGivesUpAfterMaxRetries(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	cfg := testSinkConfig()
	cfg.BackoffMaxRetries = 1
	forwarder := &stubForwarder{failTimes: 100}
	sink := alertsink.NewSink(cfg, forwarder, reg)

	sink.Push(model.Alert{AlertID: "a1"})
	sink.Close()

	forwarder.mu.Lock()
	defer forwarder.mu.Unlock()
	require.Empty(t, forwarder.delivered)
	require.Equal(t, 2, forwarder.attempts, "BackoffMaxRetries=1 means two total attempts")
}

func TestSinkDropsOldestWhenQueueFull(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	cfg := testSinkConfig()
	cfg.QueueCapacity = 2

	// gate blocks the worker's very first delivery so alerts pile up in the
	// queue long enough to overflow deterministically.
	forwarder := &stubForwarder{gate: make(chan struct{})}
	sink := alertsink.NewSink(cfg, forwarder, reg)

	sink.Push(model.Alert{AlertID: "a1"}) // immediately picked up by the worker, blocks on gate
	require.Eventually(t, func() bool { return sink.QueueDepth() == 0 }, time.Second, time.Millisecond)

	sink.Push(model.Alert{AlertID: "a2"})
	sink.Push(model.Alert{AlertID: "a3"})
	sink.Push(model.Alert{AlertID: "a4"}) // over capacity: drops a2

	require.Equal(t, 2, sink.QueueDepth())
	close(forwarder.gate)
	sink.Close()

	forwarder.mu.Lock()
	defer forwarder.mu.Unlock()
	ids := make([]string, len(forwarder.delivered))
	for i, a := range forwarder.delivered {
		ids[i] = a.AlertID
	}
	require.Equal(t, []string{"a1", "a3", "a4"}, ids)
}
