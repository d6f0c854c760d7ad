package model

// DetectorID is a fixed enum of detector identities, replacing the source
// system's open dictionaries (spec Design Notes: "Dynamic maps of
// detector->something"). Registration order below is the fusion engine's
// fixed evaluation order, so identical inputs always produce identical
// test output.
type DetectorID int

const (
	DetectorZeekScan DetectorID = iota
	DetectorZeekAuth
	DetectorZeekExec
	DetectorZeekDPI
	DetectorZeekEncrypted
	DetectorZeekZeroday
	DetectorMLAnomaly
	DetectorGraphAnalysis
	DetectorThreatIntel
	DetectorBaselineDeviation

	numDetectors
)

// detectorNames is indexed by DetectorID and gives the wire/config name for
// each detector; config.FusionConfig.DetectorAccuracy is keyed by these
// same strings.
var detectorNames = [numDetectors]string{
	DetectorZeekScan:          "zeek_scan",
	DetectorZeekAuth:          "zeek_auth",
	DetectorZeekExec:          "zeek_exec",
	DetectorZeekDPI:           "zeek_dpi",
	DetectorZeekEncrypted:     "zeek_encrypted",
	DetectorZeekZeroday:       "zeek_zeroday",
	DetectorMLAnomaly:         "ml_anomaly",
	DetectorGraphAnalysis:     "graph_analysis",
	DetectorThreatIntel:       "threat_intel",
	DetectorBaselineDeviation: "baseline_deviation",
}

// String returns the detector's wire/config name.
func (d DetectorID) String() string {
	if d < 0 || int(d) >= len(detectorNames) {
		return "unknown"
	}
	return detectorNames[d]
}

// AllDetectors returns every detector identity in fixed registration order.
func AllDetectors() []DetectorID {
	ids := make([]DetectorID, numDetectors)
	for i := range ids {
		ids[i] = DetectorID(i)
	}
	return ids
}

// Detections is the fixed-size {detector -> triggered} map (D in spec
// §4.7), indexed directly by DetectorID for O(1) access on the hot path.
type Detections struct {
	triggered [numDetectors]bool
	present   [numDetectors]bool
}

// Set records whether id triggered for this event.
func (d *Detections) Set(id DetectorID, triggered bool) {
	d.triggered[id] = triggered
	d.present[id] = true
}

// Get reports the triggered value and whether id was ever set.
func (d *Detections) Get(id DetectorID) (triggered bool, present bool) {
	return d.triggered[id], d.present[id]
}

// Count returns the number of detectors that triggered true.
func (d *Detections) Count() int {
	n := 0
	for i := range d.triggered {
		if d.present[i] && d.triggered[i] {
			n++
		}
	}
	return n
}

// Present returns the number of detectors that reported any value.
func (d *Detections) Present() int {
	n := 0
	for i := range d.present {
		if d.present[i] {
			n++
		}
	}
	return n
}

// Map renders the Detections as a plain map for JSON output and logging.
func (d *Detections) Map() map[string]bool {
	out := make(map[string]bool, numDetectors)
	for i := range d.present {
		if d.present[i] {
			out[DetectorID(i).String()] = d.triggered[i]
		}
	}
	return out
}

// Scores is the fixed-size {detector -> [0,1]} continuous map (S in spec
// §4.7).
type Scores struct {
	value   [numDetectors]float64
	present [numDetectors]bool
}

// Set records a continuous score for id.
func (s *Scores) Set(id DetectorID, score float64) {
	s.value[id] = score
	s.present[id] = true
}

// Get reports the score and whether id was ever set.
func (s *Scores) Get(id DetectorID) (score float64, present bool) {
	return s.value[id], s.present[id]
}

// Any reports whether at least one score was set.
func (s *Scores) Any() bool {
	for i := range s.present {
		if s.present[i] {
			return true
		}
	}
	return false
}
