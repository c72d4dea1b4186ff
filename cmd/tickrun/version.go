package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the tickrun version",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "tickrun %s (%s)\n", version, runtime.Version())
			return nil
		},
	}
}
