// Package logger provides the process-wide zerolog logger used by every
// component of the detection pipeline instead of the standard log or fmt
// packages.
package logger

import (
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var once sync.Once
var zLogger zerolog.Logger

// DebugMode forces debug-level logging regardless of LOG_LEVEL, useful for
// tests and local development.
var DebugMode bool

/*
zerolog allows for logging at the following levels (from highest to lowest):

	panic (zerolog.PanicLevel, 5)
	fatal (zerolog.FatalLevel, 4)
	error (zerolog.ErrorLevel, 3)
	warn  (zerolog.WarnLevel, 2)
	info  (zerolog.InfoLevel, 1)
	debug (zerolog.DebugLevel, 0)
	trace (zerolog.TraceLevel, -1)
*/

// GetLogger returns the process-wide logger, initializing it on first call.
// LOG_LEVEL (an integer matching zerolog's level scale) controls verbosity;
// it defaults to info (1) when unset or unparsable.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

		var output io.Writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}

		logLevel := zerolog.InfoLevel
		if levelEnv := os.Getenv("LOG_LEVEL"); levelEnv != "" {
			if parsed, err := strconv.Atoi(levelEnv); err == nil {
				logLevel = zerolog.Level(parsed)
			}
		}
		if DebugMode {
			logLevel = zerolog.DebugLevel
		}

		zLogger = zerolog.New(output).Level(logLevel).With().Timestamp().Logger()
	})
	return zLogger
}

// WithComponent returns a child logger tagged with the emitting component's
// name, so failures in one detector can be traced back to it in aggregate
// logs (e.g. "detect.conn", "fusion", "alertsink").
func WithComponent(component string) zerolog.Logger {
	return GetLogger().With().Str("component", component).Logger()
}
