// Package baseline implements the statistical baseline learner (C5):
// per-host incremental mean/variance over observed metrics, and a
// per-hour-of-day circadian profile of connection volume. Grounded on
// original_source/analyzer/ml_detector.py's BaselineLearner and
// CircadianAnalyzer, reimplemented with Welford's algorithm (spec §9
// design note) in place of the original's naive running mean, which loses
// precision over long streams and never tracked variance incrementally at
// all.
package baseline

import (
	"math"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/lateralwatch/engine/config"
)

// maxHourSamples bounds the per-hour ring buffer kept for percentile
// diagnostics; Welford accumulation itself needs no history, but p95
// reporting does.
const maxHourSamples = 500

// welford accumulates a numerically stable running mean and variance
// (Welford's online algorithm).
type welford struct {
	count int64
	mean  float64
	m2    float64
}

func (w *welford) update(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

func (w *welford) variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

func (w *welford) stdDev() float64 {
	v := w.variance()
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// zScore returns the absolute z-score of x against this accumulator, or 0
// if the accumulator has no spread yet.
func (w *welford) zScore(x float64) float64 {
	std := w.stdDev()
	if std == 0 {
		return 0
	}
	return absF((x - w.mean) / std)
}

// HostMetrics tracks a host's per-metric incremental statistics.
type HostMetrics struct {
	metrics map[string]*welford
}

func newHostMetrics() *HostMetrics {
	return &HostMetrics{metrics: make(map[string]*welford)}
}

// Learner is the per-host and per-hour baseline store (C5).
type Learner struct {
	mu          sync.Mutex
	cfg         config.BaselineConfig
	hosts       map[string]*HostMetrics
	hours       [24]*welford
	hourSamples [24][]float64
}

// NewLearner returns an empty Learner configured with cfg's thresholds.
func NewLearner(cfg config.BaselineConfig) *Learner {
	l := &Learner{
		cfg:   cfg,
		hosts: make(map[string]*HostMetrics),
	}
	for i := range l.hours {
		l.hours[i] = &welford{}
	}
	return l
}

// Event is one per-host metric observation (spec §4.5): a bag of named
// metric values recorded for host at timestamp.
type Event struct {
	Host    string
	Metrics map[string]float64
	Hour    int
}

// Result is C5's per-event output for the host-deviation rule.
type Result struct {
	Anomaly        bool
	AccumulatedZ   float64
	DeviantMetrics []string
}

// EvaluateHost scores event's metrics against host's accumulated
// statistics without mutating them; anomaly fires when the sum of every
// metric's z-score exceeding ZThreshold surpasses
// AccumulatedScoreThreshold. Unknown hosts are never anomalous (cold-start
// is silent, not noisy).
func (l *Learner) EvaluateHost(event Event) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	hm, ok := l.hosts[event.Host]
	if !ok {
		return Result{}
	}

	var accumulated float64
	var deviant []string
	for metric, value := range event.Metrics {
		w, ok := hm.metrics[metric]
		if !ok {
			continue
		}
		z := w.zScore(value)
		if z > l.cfg.ZThreshold {
			accumulated += z
			deviant = append(deviant, metric)
		}
	}

	return Result{
		Anomaly:        accumulated > l.cfg.AccumulatedScoreThreshold,
		AccumulatedZ:   accumulated,
		DeviantMetrics: deviant,
	}
}

// UpdateHost folds event's metrics into host's running statistics. Call
// after EvaluateHost so an event is judged against prior history, not
// itself.
func (l *Learner) UpdateHost(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hm, ok := l.hosts[event.Host]
	if !ok {
		hm = newHostMetrics()
		l.hosts[event.Host] = hm
	}

	for metric, value := range event.Metrics {
		w, ok := hm.metrics[metric]
		if !ok {
			w = &welford{}
			hm.metrics[metric] = w
		}
		w.update(value)
	}
}

// HourlyResult is C5's per-event output for the circadian rule.
type HourlyResult struct {
	Anomaly   bool
	ZScore    float64
	Threshold float64
}

// EvaluateHour scores connCount for hour against that hour-of-day's
// accumulated profile, applying the schedule-sensitive threshold from
// spec §4.5: night hours (cfg.NightHourStart..NightHourEnd) use a
// stricter threshold, business hours a looser one, everything else the
// default. Needs at least HourlyMinSamples observations in that hour
// before it will flag.
func (l *Learner) EvaluateHour(hour int, connCount float64) HourlyResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.hourThreshold(hour % 24)

	w := l.hours[hour%24]
	if w.count < int64(l.cfg.HourlyMinSamples) {
		return HourlyResult{Threshold: threshold}
	}

	z := w.zScore(connCount)

	return HourlyResult{Anomaly: z > threshold, ZScore: z, Threshold: threshold}
}

// UpdateHour folds connCount into hour's running profile.
func (l *Learner) UpdateHour(hour int, connCount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := hour % 24
	l.hours[h].update(connCount)

	samples := append(l.hourSamples[h], connCount)
	if len(samples) > maxHourSamples {
		samples = samples[len(samples)-maxHourSamples:]
	}
	l.hourSamples[h] = samples
}

// HourlyP95 reports the 95th percentile of hour's recent connection-count
// samples, used by operators diagnosing why a circadian threshold is
// firing. Returns 0 with no error if the hour has no samples yet.
func (l *Learner) HourlyP95(hour int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	samples := l.hourSamples[hour%24]
	if len(samples) == 0 {
		return 0, nil
	}
	return stats.Percentile(samples, 95)
}

func (l *Learner) hourThreshold(hour int) float64 {
	switch {
	case hour >= l.cfg.NightHourStart && hour <= l.cfg.NightHourEnd:
		return l.cfg.NightHourZThreshold
	case hour >= l.cfg.BusinessHourStart && hour <= l.cfg.BusinessHourEnd:
		return l.cfg.BusinessHourZThreshold
	default:
		return l.cfg.DefaultHourZThreshold
	}
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
