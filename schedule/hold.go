package schedule

import (
	"context"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/Swind/go-tick-runner/core"
)

// HoldStep returns a step that keeps its scheduler busy for d, measured on
// clock from its first invocation. A non-positive d completes on the first step.
func HoldStep(clock timeutil.Clock, d time.Duration) core.StepFunc {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	var (
		start   time.Time
		started bool
	)
	return func(ctx context.Context) core.StepResult {
		now := clock.Now()
		if !started {
			start, started = now, true
		}
		if now.Sub(start) >= d {
			return core.StepDone
		}
		return core.StepContinue
	}
}

// Hold returns a Job.Step factory producing a fresh HoldStep per firing.
func Hold(clock timeutil.Clock, d time.Duration) func() core.StepFunc {
	return func() core.StepFunc { return HoldStep(clock, d) }
}
