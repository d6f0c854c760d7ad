package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/lateralwatch/engine/config"
)

var ValidateConfigCommand = &cli.Command{
	Name:      "validate",
	Usage:     "validate a configuration file",
	UsageText: "validate [--config FILE]",
	Args:      false,
	Flags: []cli.Flag{
		ConfigFlag(true),
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}

		afs := afero.NewOsFs()
		if _, err := RunValidateConfigCommand(afs, cCtx.String("config")); err != nil {
			fmt.Println("configuration file is not valid")
			return err
		}

		fmt.Println("configuration file is valid")
		return nil
	},
}

// RunValidateConfigCommand loads and validates the config file at
// configPath, returning the parsed config on success.
func RunValidateConfigCommand(afs afero.Fs, configPath string) (*config.Config, error) {
	if err := validateConfigPath(afs, configPath); err != nil {
		return nil, err
	}
	return config.ReadFileConfig(afs, configPath)
}
