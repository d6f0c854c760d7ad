package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/lateralwatch/engine/cmd"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/logger"
)

// Version is populated by build flags with the current Git tag.
var Version string

func main() {
	config.Version = Version

	app := &cli.App{
		EnableBashCompletion: true,
		Commands:             cmd.Commands(),
		Name:                 "lateralwatch",
		Usage:                "detect lateral movement across network traffic logs",
		UsageText:            "lateralwatch [-d] command [command options]",
		Version:              Version,
		Args:                 true,
		ExitErrHandler:       exitErrHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "debug",
				Aliases:  []string{"d"},
				Usage:    "run in debug mode",
				Value:    false,
				Required: false,
			},
		},
		Before: func(cCtx *cli.Context) error {
			logger.DebugMode = os.Getenv("APP_ENV") == "dev"
			if cCtx.Bool("debug") {
				logger.DebugMode = true
			}

			// .env is optional here, unlike the teacher's required base
			// .env file: this module reads its deployment-specific
			// values (ClickHouse DSN, state dir) from config.Env via
			// ReadFileConfig, and an absent .env just means "use
			// whatever's already in the process environment".
			_ = godotenv.Load("./.env")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.GetLogger().Fatal().Err(err).Send()
	}
}

// exitErrHandler implements cli.ExitErrHandlerFunc.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.App.ErrWriter, "\n[!] %s\n", err.Error())
	cli.OsExiter(1)
}
