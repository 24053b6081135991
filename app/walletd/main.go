package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/talentchain/go-walletd/app/cmd"
	"github.com/talentchain/go-walletd/build"
)

func main() {
	app := &cli.App{
		Name:                 "walletd",
		Usage:                "TalentChain wallet session daemon",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    cmd.FlagNodeRepo,
				EnvVars: []string{"WALLETD_PATH"},
				Value:   "~/.walletd",
				Usage:   "Specify walletd repo path.",
			},
		},

		Commands: cmd.CommonCmd,
	}

	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err) // nolint:errcheck
		os.Exit(1)
	}
}
