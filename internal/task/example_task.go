package task

import (
	"context"
	"fmt"
	"time"
)

// ExampleArgs are the arguments of the example task.
type ExampleArgs struct {
	Seconds int `json:"seconds"`
}

// ExampleTask counts a number of ticks, reporting progress after each one.
// It exercises the pipeline without touching user data.
type ExampleTask struct {
	tick time.Duration
}

// NewExampleTask creates the example handler. tick is the length of one
// counted second.
func NewExampleTask(tick time.Duration) *ExampleTask {
	return &ExampleTask{tick: tick}
}

// Execute counts args.Seconds ticks.
func (t *ExampleTask) Execute(ctx context.Context, job *Job) error {
	var args ExampleArgs
	if err := job.DecodeArgs(&args); err != nil {
		return err
	}
	if args.Seconds <= 0 {
		return fmt.Errorf("%w: seconds must be positive, got %d", ErrInvalidArgs, args.Seconds)
	}

	job.Logger().Info("starting example task", "seconds", args.Seconds)
	for i := 0; i < args.Seconds; i++ {
		if err := sleep(ctx, t.tick); err != nil {
			return err
		}
		job.ReportProgress(ctx, (i+1)*100/args.Seconds)
	}
	return nil
}
