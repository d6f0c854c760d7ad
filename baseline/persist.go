package baseline

import "encoding/json"

// exportedWelford is the persisted wire shape of one accumulator.
type exportedWelford struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

func (w *welford) export() exportedWelford {
	return exportedWelford{Count: w.count, Mean: w.mean, M2: w.m2}
}

func (e exportedWelford) restore() *welford {
	return &welford{count: e.Count, mean: e.Mean, m2: e.M2}
}

// exportedHost is the persisted wire shape of one host's per-metric
// accumulators.
type exportedHost struct {
	Host    string                     `json:"host"`
	Metrics map[string]exportedWelford `json:"metrics"`
}

// exportedLearner is the persisted-state wire shape for the whole baseline
// store (spec §8's round-trip law): per-host metric accumulators plus the
// 24 hour-of-day profiles and their percentile sample rings.
type exportedLearner struct {
	Hosts       []exportedHost      `json:"hosts"`
	Hours       [24]exportedWelford `json:"hours"`
	HourSamples [24][]float64       `json:"hour_samples"`
}

// Export serializes the learner's current accumulators to JSON. Grounded
// on graph.Export's snapshot-document shape.
func (l *Learner) Export() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := exportedLearner{
		Hosts: make([]exportedHost, 0, len(l.hosts)),
	}
	for host, hm := range l.hosts {
		eh := exportedHost{Host: host, Metrics: make(map[string]exportedWelford, len(hm.metrics))}
		for metric, w := range hm.metrics {
			eh.Metrics[metric] = w.export()
		}
		doc.Hosts = append(doc.Hosts, eh)
	}
	for i := 0; i < 24; i++ {
		doc.Hours[i] = l.hours[i].export()
		doc.HourSamples[i] = append([]float64(nil), l.hourSamples[i]...)
	}

	return json.Marshal(doc)
}

// Import replaces the learner's accumulators with the state encoded in
// data, as produced by Export. Existing state is discarded.
func (l *Learner) Import(data []byte) error {
	var doc exportedLearner
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.hosts = make(map[string]*HostMetrics, len(doc.Hosts))
	for _, eh := range doc.Hosts {
		hm := newHostMetrics()
		for metric, ew := range eh.Metrics {
			hm.metrics[metric] = ew.restore()
		}
		l.hosts[eh.Host] = hm
	}
	for i := 0; i < 24; i++ {
		l.hours[i] = doc.Hours[i].restore()
		l.hourSamples[i] = append([]float64(nil), doc.HourSamples[i]...)
	}

	return nil
}
