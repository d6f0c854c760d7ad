package anomaly_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/anomaly"
	"github.com/lateralwatch/engine/model"
)

// Scenario F - ML disabled: no artifact loaded.
func TestUnloadedDetectorAlwaysReturnsZeroResult(t *testing.T) {
	d := anomaly.NewDetector()
	require.False(t, d.Loaded())

	result := d.Score(model.FeatureVector{ConnectionRate: 999, TargetCount: 999})
	require.Equal(t, anomaly.Result{}, result)
}

func TestLoadArtifactEnablesScoring(t *testing.T) {
	d := anomaly.NewDetector()

	artifact := anomaly.Artifact{
		Means:            [8]float64{1, 1, 1, 0, 100, 1, 1, 0},
		StdDevs:          [8]float64{1, 1, 1, 1, 50, 1, 1, 1},
		ContaminationCut: 0.5,
		Stumps: []anomaly.Stump{
			{Feature: 1, Cut: 3, OutlierAbove: true},
			{Feature: 3, Cut: 2, OutlierAbove: true},
		},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, d.LoadArtifact(data))
	require.True(t, d.Loaded())

	normal := d.Score(model.FeatureVector{ConnectionRate: 1, TargetCount: 1, PortDiversity: 1, AvgPacketSize: 100, SessionDuration: 1, UploadDownloadRatio: 1})
	require.False(t, normal.Anomaly)

	anomalous := d.Score(model.FeatureVector{ConnectionRate: 1, TargetCount: 50, PortDiversity: 1, FailedAuthRatio: 10, AvgPacketSize: 100, SessionDuration: 1, UploadDownloadRatio: 1})
	require.True(t, anomalous.Anomaly)
	require.InDelta(t, math.Abs(anomalous.Score), anomalous.Confidence, 1e-9)
}

func TestZeroStdDevFeatureNeverContributesNaN(t *testing.T) {
	d := anomaly.NewDetector()
	artifact := anomaly.Artifact{
		Stumps: []anomaly.Stump{{Feature: 0, Cut: 0, OutlierAbove: true}},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, d.LoadArtifact(data))

	result := d.Score(model.FeatureVector{ConnectionRate: 5})
	require.False(t, math.IsNaN(result.Score))
}
