// Command tickrun hosts tick schedulers fed by cron jobs from a YAML file.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:    "tickrun",
		Usage:   "Run cooperative tick schedulers fed by cron jobs",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			versionCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
