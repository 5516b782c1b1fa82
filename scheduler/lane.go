package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/saltfishpr/resilience/reqctx"
	"github.com/saltfishpr/resilience/routine"
)

// runOnLane executes task with ctx and makes sure the lane is left without a
// current request context afterwards.
func runOnLane(o *options, lane *reqctx.Lane, task Task) {
	ctx := reqctx.WithLane(o.base, lane)
	routine.RunSafe(func() {
		task(ctx)
	}, func(r any) {
		o.logger.Error().
			Err(routine.NewRecovered(2, r).AsError()).
			Str("lane", lane.String()).
			Msg("scheduler: task panicked")
	})

	if leaked := lane.Replace(nil); leaked != nil {
		o.logger.Error().
			Str("lane", lane.String()).
			Object("request", leaked).
			Msg("scheduler: task left a request context on its lane")
	}
}

func logRelease(l zerolog.Logger, err error) {
	if err != nil {
		l.Error().Err(err).Msg("scheduler: lane released while holding a request context")
	}
}
