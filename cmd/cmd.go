// Package cmd wires the detection pipeline into a thin urfave/cli command
// set: ingest (stream records from stdin, write alerts to stdout),
// replay (deterministic fixed-clock replay of a log file, for the
// round-trip testable property), and validate (config file sanity check).
// Grounded on rita.go/cmd/cmd.go's App{Commands: ...} shape, trimmed of
// the dataset-management commands (list/delete/view/zone-transfer) that
// have no analog in this spec's single-stream pipeline model.
package cmd

import (
	"errors"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var ErrMissingConfigPath = errors.New("config path parameter is required")
var ErrTooManyArguments = errors.New("too many arguments provided")

// Commands returns the CLI's top-level command set.
func Commands() []*cli.Command {
	return []*cli.Command{
		IngestCommand,
		ReplayCommand,
		ValidateConfigCommand,
	}
}

// ConfigFlag is the shared --config flag every command accepts.
func ConfigFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "load configuration from `FILE`",
		Value:    "./config.hjson",
		Required: required,
	}
}

func validateConfigPath(afs afero.Fs, path string) error {
	if path == "" {
		return ErrMissingConfigPath
	}
	ok, err := afero.Exists(afs, path)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("config file does not exist: " + path)
	}
	return nil
}
