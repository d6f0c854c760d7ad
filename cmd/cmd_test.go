package cmd_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/cmd"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/model"
)

const validConfig = `{
	detectors: { lateral_scan_threshold: 20 },
}`

func TestRunValidateConfigCommandAcceptsValidConfig(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "localhost:9000")
	t.Setenv("STATE_DIR", "/state")

	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/config.hjson", []byte(validConfig), 0o644))

	cfg, err := cmd.RunValidateConfigCommand(afs, "/config.hjson")
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Detectors.LateralScanThreshold)
}

func TestRunValidateConfigCommandRejectsMissingFile(t *testing.T) {
	afs := afero.NewMemMapFs()
	_, err := cmd.RunValidateConfigCommand(afs, "/does/not/exist.hjson")
	require.Error(t, err)
}

func connLine(source, dest string) string {
	line, _ := json.Marshal(map[string]any{
		"_path":     "conn",
		"ts":        1700000000.0,
		"id.orig_h": source,
		"id.resp_h": dest,
		"id.resp_p": 445,
		"service":   "smb",
	})
	return string(line)
}

// A scan from one source host across 20 distinct admin-port destinations,
// combined with a pre-loaded threat-intel IOC match on that same source
// (seeded via the state directory, the way a prior ingest run would leave
// it), crosses the two-detector fusion gate and produces exactly one
// alert line on stdout.
func TestRunIngestCommandEmitsAlertOnCrossingTwoDetectors(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "localhost:9000")
	t.Setenv("STATE_DIR", "/state")

	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/config.hjson", []byte(validConfig), 0o644))
	cfg, err := config.ReadFileConfig(afs, "/config.hjson")
	require.NoError(t, err)

	require.NoError(t, afs.MkdirAll("/state", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/state/threatintel.json",
		[]byte(`{"ips":["192.168.1.10"],"domains":[],"hashes":[]}`), 0o644))

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, connLine("192.168.1.10", fmt.Sprintf("192.168.2.%d", i+1)))
	}
	in := strings.NewReader(strings.Join(lines, "\n"))

	var out bytes.Buffer
	forwarder := alertsink.NewStdoutForwarder(&out)
	require.NoError(t, cmd.RunIngestCommand(afs, *cfg, in, forwarder, nil, true))

	var alerts []model.Alert
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		var a model.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &a))
		alerts = append(alerts, a)
	}
	require.Len(t, alerts, 1)
	require.Equal(t, "192.168.1.10", alerts[0].EventSummary.Source)
}

func TestRunIngestCommandProducesNoAlertsForCleanTraffic(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "localhost:9000")
	t.Setenv("STATE_DIR", "/state")

	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/config.hjson", []byte(validConfig), 0o644))
	cfg, err := config.ReadFileConfig(afs, "/config.hjson")
	require.NoError(t, err)

	in := strings.NewReader(connLine("192.168.9.9", "192.168.9.10"))
	var out bytes.Buffer
	forwarder := alertsink.NewStdoutForwarder(&out)
	require.NoError(t, cmd.RunIngestCommand(afs, *cfg, in, forwarder, nil, false))

	require.Empty(t, strings.TrimSpace(out.String()))
}

// Replay never touches the state directory: the same 20-record scan that
// crosses the fusion gate under ingest with a pre-loaded threat-intel IOC
// produces no alert here, even with that IOC left in the state directory
// by a prior run, since replay never loads it.
func TestRunReplayCommandIsStatelessAcrossRuns(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "localhost:9000")
	t.Setenv("STATE_DIR", "/state")

	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/config.hjson", []byte(validConfig), 0o644))
	cfg, err := config.ReadFileConfig(afs, "/config.hjson")
	require.NoError(t, err)

	require.NoError(t, afs.MkdirAll("/state", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/state/threatintel.json",
		[]byte(`{"ips":["192.168.1.10"],"domains":[],"hashes":[]}`), 0o644))

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, connLine("192.168.1.10", fmt.Sprintf("192.168.2.%d", i+1)))
	}
	in := strings.NewReader(strings.Join(lines, "\n"))

	var out bytes.Buffer
	forwarder := alertsink.NewStdoutForwarder(&out)
	require.NoError(t, cmd.RunReplayCommand(afs, *cfg, in, forwarder, time.Unix(0, 0).UTC()))

	require.Empty(t, strings.TrimSpace(out.String()))
}
