package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// TaskFunc turns one job into its outcome.
type TaskFunc func(ctx context.Context, job Job) Outcome

// RunAll runs task for every job with at most concurrency tasks in flight and
// streams one outcome per job in completion order. The channel is closed once
// every task has returned. After ctx is cancelled no further task is started;
// the remaining jobs are reported as cancelled.
func RunAll(ctx context.Context, jobs []Job, concurrency int, task TaskFunc) <-chan Outcome {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make(chan Outcome, concurrency)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(concurrency)

		for i, job := range jobs {
			if ctx.Err() != nil {
				slog.Warn("pool: cancelled, skipping remaining jobs", "remaining", len(jobs)-i)
				for _, rest := range jobs[i:] {
					PipelineStats.Cancelled.Add(1)
					out <- failure(rest, KindCancelled, "cancelled: not attempted")
				}
				break
			}
			job := job
			g.Go(func() error {
				inflightTasks.Inc()
				defer inflightTasks.Dec()
				out <- runTask(ctx, job, task)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// runTask converts a panic inside task into a failure outcome.
func runTask(ctx context.Context, job Job, task TaskFunc) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pool: task panicked", "line", job.Line, "panic", r, "stack", string(debug.Stack()))
			o = failure(job, KindPanic, fmt.Sprintf("internal error: %v", r))
		}
	}()
	return task(ctx, job)
}

// Collect drains outcomes, feeding each to observe (when non-nil), and returns
// them in arrival order.
func Collect(outcomes <-chan Outcome, observe func(Outcome)) []Outcome {
	var all []Outcome
	for o := range outcomes {
		outcomesTotal.WithLabelValues(o.Kind.String()).Inc()
		if observe != nil {
			observe(o)
		}
		all = append(all, o)
	}
	return all
}
