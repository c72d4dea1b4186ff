// Package tickrunner provides a cooperative, tick-driven task scheduler for Go.
//
// Work is expressed as step functions that are polled once per tick (frame)
// until they report completion. Each Scheduler runs at most one task at a
// time, so tasks never need locks to coordinate with each other, and every
// task carries its own time limit and abort-on-timeout policy.
//
// # Quick Start
//
// Create a Host at application startup. It owns the tick loop and tears every
// scheduler down on Shutdown:
//
//	host := tickrunner.NewHost(tickrunner.HostConfig{TickInterval: 16 * time.Millisecond})
//	defer host.Shutdown()
//
//	sched := host.NewScheduler("main")
//	sched.EnqueueAction(func(ctx context.Context) {
//		// runs once, on the tick goroutine
//	})
//
// # Key Concepts
//
// StepFunc: Returns StepContinue to be polled again on the next tick, StepDone
// to finish, or StepAbort to cancel itself and everything queued after it.
//
// Immediate queue: EnqueueImmediate tasks are taken before normal tasks
// whenever the scheduler becomes idle. A running task is never preempted.
//
// TaskTraits: Optional name, time limit and AbortPolicy per task. A task that
// keeps returning StepContinue past its limit is discarded; with
// AbortPolicyClearQueue the rest of the queue is discarded too.
//
// TickSource: Anything that calls OnTick periodically. TickLoop runs its own
// goroutine; ManualTickSource lets an existing frame loop (or a test) fire ticks.
//
// # Failure Handling
//
// Timeouts, abort signals and panics inside a step are recovered by the
// scheduler and reported through the injected Logger and Metrics; none of them
// propagate to the tick source. The scheduler is idle and fully usable after each.
//
// # Example
//
//	import (
//		"context"
//		tickrunner "github.com/Swind/go-tick-runner"
//	)
//
//	func main() {
//		ticks := tickrunner.NewManualTickSource()
//		sched := tickrunner.NewScheduler(ticks, nil)
//		defer sched.Dispose()
//
//		deadline := time.Now().Add(time.Second)
//		sched.Enqueue(func(ctx context.Context) tickrunner.StepResult {
//			if time.Now().Before(deadline) {
//				return tickrunner.StepContinue
//			}
//			return tickrunner.StepDone
//		})
//
//		for sched.IsBusy() {
//			ticks.Fire()
//			time.Sleep(16 * time.Millisecond)
//		}
//	}
//
// For more details, see https://github.com/Swind/go-tick-runner
package tickrunner
