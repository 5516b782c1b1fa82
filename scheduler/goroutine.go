package scheduler

import (
	"time"
)

type goScheduler struct {
	opts options
}

// Go returns a Scheduler that runs every task on a new goroutine with its own
// short-lived lane.
func Go(opts ...Option) Scheduler {
	return &goScheduler{opts: newOptions(opts)}
}

var defaultGo = Go()

// Default returns the shared goroutine-per-task scheduler.
func Default() Scheduler {
	return defaultGo
}

func (g *goScheduler) Schedule(task Task) error {
	go func() {
		lane := g.opts.storage.NewLane("go")
		defer func() {
			logRelease(g.opts.logger, g.opts.storage.Release(lane))
		}()
		runOnLane(&g.opts, lane, task)
	}()
	return nil
}

func (g *goScheduler) ScheduleAfter(d time.Duration, task Task, rejected func(err error)) func() bool {
	return scheduleAfter(g, d, task, rejected)
}
