package config_test

import (
	"testing"

	"github.com/lateralwatch/engine/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfigValidates(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Env = config.Env{
		ClickHouseDSN: "localhost:9000",
		StateDir:      "/tmp/state",
	}

	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigMatchesSpecConstants(t *testing.T) {
	cfg := config.GetDefaultConfig()

	require.Equal(t, 20, cfg.Detectors.LateralScanThreshold)
	require.Equal(t, 3, cfg.Detectors.PassTheHashHostCount)
	require.Equal(t, 2, cfg.Detectors.PSExecShareCount)
	require.Equal(t, 5, cfg.Detectors.SMBBruteforceThreshold)
	require.Equal(t, 2, cfg.Detectors.WMIEndpointCount)
	require.Equal(t, 5, cfg.Detectors.RDPHoppingThreshold)
	require.ElementsMatch(t, []int{22, 135, 139, 445, 3389, 5985, 5986}, cfg.Detectors.AdminInterestingPorts)

	require.Equal(t, 20, cfg.Graph.FanoutThreshold)
	require.Equal(t, 6, cfg.Graph.MultiHopCutoff)
	require.Equal(t, 3, cfg.Graph.MinHops)
	require.InDelta(t, 0.95, cfg.Graph.RareCommunicationThreshold, 1e-9)
	require.InDelta(t, 0.1, cfg.Graph.PivotBetweennessThreshold, 1e-9)
	require.Equal(t, 8, cfg.Graph.CycleMaxLength)
	require.Equal(t, 1000, cfg.Graph.CycleMaxResults)

	require.InDelta(t, 1e-3, cfg.Fusion.Prior, 1e-12)
	threatIntel, ok := cfg.Fusion.DetectorAccuracy["threat_intel"]
	require.True(t, ok)
	require.InDelta(t, 0.95, threatIntel.TPR, 1e-9)
	require.InDelta(t, 0.02, threatIntel.FPR, 1e-9)
	require.InDelta(t, 1.5, threatIntel.Weight, 1e-9)

	require.InDelta(t, 0.9999, cfg.Fusion.ActionThresholds.BlockImmediately, 1e-9)
	require.InDelta(t, 1.3, cfg.Fusion.Contextual.CriticalTargetMultiplier, 1e-9)
	require.InDelta(t, 1.2, cfg.Fusion.Contextual.RepeatOffenderMultiplier, 1e-9)
	require.InDelta(t, 1.15, cfg.Fusion.Contextual.OffHoursMultiplier, 1e-9)

	require.Equal(t, 2, cfg.Pipeline.MinDetectionsToFuse)
}

func TestReadConfigFromMemoryOverridesDefaults(t *testing.T) {
	raw := []byte(`{
		detectors: { lateral_scan_threshold: 50 },
	}`)

	cfg, err := config.ReadConfigFromMemory(raw, config.Env{
		ClickHouseDSN: "localhost:9000",
		StateDir:      "/tmp/state",
	})
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Detectors.LateralScanThreshold)
	// untouched defaults survive the partial override
	require.Equal(t, 3, cfg.Detectors.PassTheHashHostCount)
}

func TestReadFileConfigMissingFile(t *testing.T) {
	afs := afero.NewMemMapFs()
	_, err := config.ReadFileConfig(afs, "/does/not/exist.hjson")
	require.Error(t, err)
}

func TestValidateRejectsInvertedHopBounds(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Env = config.Env{ClickHouseDSN: "localhost:9000", StateDir: "/tmp/state"}
	cfg.Graph.MinHops = 10
	cfg.Graph.MultiHopCutoff = 2

	require.Error(t, cfg.Validate())
}
