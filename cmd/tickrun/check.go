package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-tick-runner/config"
	"github.com/Swind/go-tick-runner/schedule"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate a config file and print the resolved setup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Required: true,
				Usage:    "Path to tickrun.yaml",
			},
		},
		Action: checkAction,
	}
}

func checkAction(c *cli.Context) error {
	r, err := config.LoadResolved(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "tick interval: %s\n", r.TickInterval)
	fmt.Fprintf(w, "time limit: %s (abort_on_timeout=%t, timeout_silently=%t)\n",
		r.DefaultTimeLimit, r.AbortOnTimeout, r.TimeoutSilently)
	fmt.Fprintf(w, "schedulers: %v\n", r.Schedulers)
	if r.Metrics.Enabled {
		fmt.Fprintf(w, "metrics: %s/metrics (namespace %s)\n", r.Metrics.Listen, r.Metrics.Namespace)
	}

	now := time.Now()
	for _, j := range r.Jobs {
		next, err := schedule.Next(j.Schedule, now)
		if err != nil {
			return cli.Exit(fmt.Sprintf("job %s: %v", j.Name, err), 1)
		}
		fmt.Fprintf(w, "job %s -> %s: %q hold=%s next=%s\n",
			j.Name, j.Scheduler, j.Schedule, j.Hold, next.Format(time.RFC3339))
	}
	fmt.Fprintln(w, "✓ config OK")
	return nil
}
