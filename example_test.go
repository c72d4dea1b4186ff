package tickrunner_test

import (
	"context"
	"fmt"

	tickrunner "github.com/Swind/go-tick-runner"
)

// ExampleNewScheduler demonstrates driving a scheduler from your own frame loop.
func ExampleNewScheduler() {
	ticks := tickrunner.NewManualTickSource()
	sched := tickrunner.NewScheduler(ticks, nil)
	defer sched.Dispose()

	sched.EnqueueAction(func(ctx context.Context) {
		fmt.Println("Task 1")
	})
	sched.EnqueueAction(func(ctx context.Context) {
		fmt.Println("Task 2")
	})
	sched.EnqueueImmediateAction(func(ctx context.Context) {
		fmt.Println("Urgent")
	})

	for sched.IsBusy() {
		ticks.Fire()
	}

	// Output:
	// Urgent
	// Task 1
	// Task 2
}

// ExampleStepFunc demonstrates a step that spans several ticks.
func ExampleStepFunc() {
	ticks := tickrunner.NewManualTickSource()
	sched := tickrunner.NewScheduler(ticks, nil)
	defer sched.Dispose()

	frame := 0
	sched.Enqueue(func(ctx context.Context) tickrunner.StepResult {
		frame++
		fmt.Printf("frame %d\n", frame)
		if frame < 3 {
			return tickrunner.StepContinue
		}
		return tickrunner.StepDone
	})

	for sched.IsBusy() {
		ticks.Fire()
	}
	rec, _ := sched.LastTask()
	fmt.Println(rec.Outcome, rec.Steps)

	// Output:
	// frame 1
	// frame 2
	// frame 3
	// done 3
}

// ExampleStepAbort demonstrates a step cancelling everything queued behind it.
func ExampleStepAbort() {
	ticks := tickrunner.NewManualTickSource()
	sched := tickrunner.NewScheduler(ticks, nil)
	defer sched.Dispose()

	sched.EnqueueWithTraits(func(ctx context.Context) tickrunner.StepResult {
		fmt.Println("login failed")
		return tickrunner.StepAbort
	}, tickrunner.TraitsNamed("login"))
	sched.EnqueueAction(func(ctx context.Context) {
		fmt.Println("load profile")
	})

	ticks.FireN(2)
	fmt.Println("queued:", sched.NumQueuedTasks())

	// Output:
	// login failed
	// queued: 0
}
