package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/ingest"
	"github.com/lateralwatch/engine/model"
)

var IngestCommand = &cli.Command{
	Name:      "ingest",
	Usage:     "classify and score line-delimited JSON records from stdin, writing alerts to stdout",
	UsageText: "ingest [--config FILE] [--anomaly-model FILE] [--no-persist]",
	Args:      false,
	Flags: []cli.Flag{
		ConfigFlag(true),
		&cli.StringFlag{
			Name:  "anomaly-model",
			Usage: "path to an optional C4 anomaly-detector artifact",
		},
		&cli.BoolFlag{
			Name:  "no-persist",
			Usage: "skip loading and saving C3/C5/C6 state under the configured state directory",
		},
		&cli.StringFlag{
			Name:  "sink",
			Usage: "alert delivery target: \"stdout\" (default) or \"clickhouse\"",
			Value: "stdout",
		},
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}

		afs := afero.NewOsFs()
		cfg, err := config.ReadFileConfig(afs, cCtx.String("config"))
		if err != nil {
			return fmt.Errorf("error loading config file: %w", err)
		}

		var anomalyArtifact []byte
		if path := cCtx.String("anomaly-model"); path != "" {
			anomalyArtifact, err = afero.ReadFile(afs, path)
			if err != nil {
				return fmt.Errorf("error reading anomaly model artifact: %w", err)
			}
		}

		forwarder, closeForwarder, err := buildForwarder(cCtx.Context, cCtx.String("sink"), *cfg, cCtx.App.Writer)
		if err != nil {
			return err
		}
		defer closeForwarder()

		return RunIngestCommand(afs, *cfg, os.Stdin, forwarder, anomalyArtifact, !cCtx.Bool("no-persist"))
	},
}

// RunIngestCommand drives the C1-C8 pipeline end to end: it classifies
// every line-delimited JSON record read from in, submits it to a freshly
// built Pipeline, and delivers each resulting alert through forwarder.
// Split out from the cli.Command's Action so tests can drive it against
// an in-memory reader and a recording forwarder instead of the process's
// real stdin and a live ClickHouse connection.
func RunIngestCommand(afs afero.Fs, cfg config.Config, in io.Reader, forwarder alertsink.Forwarder, anomalyArtifact []byte, persist bool) error {
	clk := clock.Real{}
	reg := newMetricsRegistry()

	rp, err := buildPipeline(cfg, afs, clk, forwarder, reg, anomalyArtifact, persist)
	if err != nil {
		return fmt.Errorf("error constructing pipeline: %w", err)
	}

	rp.Pipeline.Start()

	classifier := ingest.NewClassifier(reg)
	records := make(chan *model.Record, cfg.Pipeline.LaneBufferSize)
	go func() {
		classifier.Stream(in, records)
		close(records)
	}()
	for r := range records {
		rp.Pipeline.Submit(r)
	}

	return rp.shutdown(persist, clk)
}
