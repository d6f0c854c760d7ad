// Package anomaly implements the ML anomaly detector (C4): an 8-feature
// vector is standardized against a loaded scaler and scored against an
// unsupervised model artifact. Grounded on
// original_source/analyzer/ml_detector.py's MLAnomalyDetector, whose
// IsolationForest/StandardScaler pair has no Go equivalent anywhere in the
// example pack (no golearn, gorgonia, or similar appears in _examples/);
// the artifact is reduced to a portable standardize-then-score contract a
// real offline trainer could populate, per spec §4.4's explicit statement
// that training is an external, batch-only collaborator.
package anomaly

import (
	"encoding/json"
	"math"

	"github.com/lateralwatch/engine/model"
)

const featureCount = 8

// Artifact is the loaded model+scaler blob (spec §3's "ML model artifact").
// Means/StdDevs standardize each feature; Stumps encode a shallow
// isolation-forest-style ensemble: each entry is one decision stump over
// one standardized feature, and the fraction of stumps that vote outlier
// for the observation drives the anomaly score, mirroring IsolationForest's path-length intuition without
// depending on a library that does not exist in this ecosystem's example
// pack.
type Artifact struct {
	Means            [featureCount]float64 `json:"means"`
	StdDevs          [featureCount]float64 `json:"std_devs"`
	Stumps           []Stump               `json:"stumps"`
	ContaminationCut float64               `json:"contamination_cut"`
}

// Stump is one decision-stump vote over a single standardized feature.
type Stump struct {
	Feature int     `json:"feature"`
	Cut     float64 `json:"cut"`
	// OutlierAbove is true if values above Cut vote anomalous, false if
	// values below Cut vote anomalous.
	OutlierAbove bool `json:"outlier_above"`
}

// Result is C4's per-event output (spec §4.4).
type Result struct {
	Anomaly    bool    `json:"anomaly"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Detector scores feature vectors against an optionally loaded Artifact.
// A nil/zero-value Detector (no artifact loaded) always returns the
// all-false, all-zero Result spec §4.4 mandates.
type Detector struct {
	artifact *Artifact
}

// NewDetector returns a Detector with no loaded artifact; C4 is disabled
// until LoadArtifact succeeds.
func NewDetector() *Detector {
	return &Detector{}
}

// LoadArtifact decodes a model+scaler artifact from JSON and enables C4.
func (d *Detector) LoadArtifact(data []byte) error {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	d.artifact = &a
	return nil
}

// Loaded reports whether a trained artifact is present.
func (d *Detector) Loaded() bool {
	return d != nil && d.artifact != nil
}

// Score standardizes fv against the loaded scaler and evaluates the stump
// ensemble. With no loaded artifact it returns the disabled-C4 zero Result.
func (d *Detector) Score(fv model.FeatureVector) Result {
	if !d.Loaded() {
		return Result{}
	}

	raw := fv.Slice()
	standardized := make([]float64, featureCount)
	for i := 0; i < featureCount; i++ {
		std := d.artifact.StdDevs[i]
		if std == 0 {
			standardized[i] = 0
			continue
		}
		standardized[i] = (raw[i] - d.artifact.Means[i]) / std
	}

	if len(d.artifact.Stumps) == 0 {
		return Result{}
	}

	var outlierVotes int
	for _, stump := range d.artifact.Stumps {
		if stump.Feature < 0 || stump.Feature >= featureCount {
			continue
		}
		v := standardized[stump.Feature]
		voteOutlier := v > stump.Cut
		if !stump.OutlierAbove {
			voteOutlier = v < stump.Cut
		}
		if voteOutlier {
			outlierVotes++
		}
	}

	fraction := float64(outlierVotes) / float64(len(d.artifact.Stumps))
	// decision_function-style score: positive means normal, negative means
	// anomalous, centered at the trained contamination cut.
	cut := d.artifact.ContaminationCut
	if cut == 0 {
		cut = 0.01
	}
	score := cut - fraction
	confidence := math.Abs(score)

	return Result{
		Anomaly:    fraction > cut,
		Score:      score,
		Confidence: confidence,
	}
}
