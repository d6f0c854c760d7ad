package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/ingest"
	"github.com/lateralwatch/engine/model"
)

// ErrMissingInputPath is returned when replay is invoked without --in.
var ErrMissingInputPath = fmt.Errorf("input log path is required")

var ReplayCommand = &cli.Command{
	Name:      "replay",
	Usage:     "deterministically replay a line-delimited JSON log file against a fixed clock",
	UsageText: "replay [--config FILE] --in FILE [--at RFC3339]",
	Args:      false,
	Flags: []cli.Flag{
		ConfigFlag(true),
		&cli.StringFlag{
			Name:     "in",
			Usage:    "path to a line-delimited JSON log file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "at",
			Usage: "RFC3339 instant the replay clock is fixed at (defaults to the Unix epoch)",
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

		inPath := cCtx.String("in")
		if inPath == "" {
			return ErrMissingInputPath
		}
		in, err := afs.Open(inPath)
		if err != nil {
			return fmt.Errorf("error opening input log: %w", err)
		}
		defer in.Close()

		at := time.Unix(0, 0).UTC()
		if raw := cCtx.String("at"); raw != "" {
			at, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("error parsing --at: %w", err)
			}
		}

		forwarder, closeForwarder, err := buildForwarder(cCtx.Context, cCtx.String("sink"), *cfg, cCtx.App.Writer)
		if err != nil {
			return err
		}
		defer closeForwarder()

		return RunReplayCommand(afs, *cfg, in, forwarder, at)
	},
}

// RunReplayCommand drives the pipeline against in using a clock fixed at
// at, delivering alerts through forwarder. Unlike RunIngestCommand, it
// never restores or persists C3/C5/C6 state: replay is a pure function
// of the input file and the fixed clock, not of whatever state a prior
// ingest run happened to leave on disk. Split out for the same testing
// reason as RunIngestCommand.
func RunReplayCommand(afs afero.Fs, cfg config.Config, in io.Reader, forwarder alertsink.Forwarder, at time.Time) error {
	clk := clock.NewFrozen(at)
	reg := newMetricsRegistry()

	rp, err := buildPipeline(cfg, afs, clk, forwarder, reg, nil, false)
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

	return rp.shutdown(false, clk)
}
