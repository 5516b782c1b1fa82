package propagation

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saltfishpr/resilience/flow"
	"github.com/saltfishpr/resilience/future"
	"github.com/saltfishpr/resilience/reqctx"
	"github.com/saltfishpr/resilience/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errAnticipated = errors.New("anticipated")

type env struct {
	t       *testing.T
	storage *reqctx.Storage
	ctx     context.Context
	single  *scheduler.Pool
	rc      *reqctx.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	storage := reqctx.NewStorage()
	lane := storage.NewLane("main")
	single := scheduler.NewSingle("single", scheduler.WithStorage(storage))
	t.Cleanup(func() {
		single.Close()
		assert.NoError(t, storage.Release(lane))
	})
	return &env{
		t:       t,
		storage: storage,
		ctx:     reqctx.WithLane(context.Background(), lane),
		single:  single,
		rc:      reqctx.New(reqctx.Operation{Method: "GET", Path: "/"}),
	}
}

// exists reports whether the request context is current on the lane of ctx.
func (e *env) exists(ctx context.Context) bool {
	return reqctx.Current(ctx) == e.rc
}

func (e *env) check(ctx context.Context, hook string) {
	assert.True(e.t, e.exists(ctx), "request context missing in %s", hook)
}

type mode int

const (
	modeWrite mode = iota
	modeCapture
)

func (m mode) String() string {
	if m == modeWrite {
		return "write"
	}
	return "capture"
}

func addCallbacks[T any](e *env, m flow.Mono[T], md mode) flow.Mono[T] {
	m = m.DoFirst(func(ctx context.Context) { e.check(ctx, "first") }).
		DoOnSubscribe(func(ctx context.Context) { e.check(ctx, "subscribe") }).
		DoOnRequest(func(ctx context.Context, _ int64) { e.check(ctx, "request") }).
		DoOnNext(func(ctx context.Context, _ T) { e.check(ctx, "next") }).
		DoOnSuccess(func(ctx context.Context, _ T) { e.check(ctx, "success") }).
		DoOnEach(func(ctx context.Context, _ flow.Signal, _ T, _ error) { e.check(ctx, "each") }).
		DoOnError(func(ctx context.Context, _ error) { e.check(ctx, "error") }).
		DoAfterTerminate(func(ctx context.Context) { e.check(ctx, "after terminate") })
	if md == modeWrite {
		return ContextWrite(m, e.rc)
	}
	return ContextCapture(m)
}

// block subscribes like the caller of the given mode would: with the request
// context pushed on the subscribing lane when it is to be captured.
func block[T any](e *env, m flow.Mono[T], md mode) (T, error) {
	if md == modeCapture {
		scope, err := e.rc.Push(e.ctx)
		require.NoError(e.t, err)
		defer scope.Close()
	}
	return m.Block(e.ctx)
}

func (e *env) assertCleanedUp() {
	// a lane may still be returning from a wrapped task
	assert.Eventually(e.t, func() bool {
		return len(e.storage.Holders(e.rc)) == 0
	}, time.Second, time.Millisecond)
}

func forEachMode(t *testing.T, fn func(t *testing.T, e *env, md mode)) {
	for _, md := range []mode{modeWrite, modeCapture} {
		t.Run(md.String(), func(t *testing.T) {
			e := newEnv(t)
			fn(t, e, md)
			e.assertCleanedUp()
		})
	}
}

func TestCreate_Success(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.Create(func(ctx context.Context, sink flow.Sink[string]) {
			e.check(ctx, "create")
			sink.Success(ctx, "foo")
		}).PublishOn(e.single)

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, "foo", v)
	})
}

func TestCreate_Error(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.Create(func(ctx context.Context, sink flow.Sink[string]) {
			e.check(ctx, "create")
			sink.Error(ctx, errAnticipated)
		}).PublishOn(e.single)

		_, err := block(e, addCallbacks(e, m, md), md)
		assert.ErrorIs(t, err, errAnticipated)
	})
}

func TestDefer(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.Defer(func(context.Context) flow.Mono[string] {
			return flow.FromFunc(func(ctx context.Context) (string, error) {
				e.check(ctx, "supplier")
				return "foo", nil
			})
		}).PublishOn(e.single)

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, "foo", v)
	})
}

func TestError(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.FromFunc(func(ctx context.Context) (string, error) {
			e.check(ctx, "error supplier")
			return "", errAnticipated
		}).PublishOn(e.single)

		_, err := block(e, addCallbacks(e, m, md), md)
		assert.ErrorIs(t, err, errAnticipated)
	})
}

func TestFromFuture(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.FromFuture(future.Done("foo")).PublishOn(e.single)

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, "foo", v)
	})
}

func TestFromFuture_Pending(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		p := future.NewPromise[string]()
		time.AfterFunc(10*time.Millisecond, func() { p.Set("foo", nil) })
		m := flow.Map(flow.FromFuture(p.Future()), func(ctx context.Context, s string) (string, error) {
			e.check(ctx, "map")
			return s, nil
		})

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, "foo", v)
	})
}

func TestDelay(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		m := flow.Then(flow.Delay(20*time.Millisecond, e.single), flow.FromFunc(func(ctx context.Context) (string, error) {
			e.check(ctx, "callable")
			return "foo", nil
		})).PublishOn(e.single)

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, "foo", v)
	})
}

func TestZip(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		supplier := func(v string) flow.Mono[string] {
			return flow.FromFunc(func(ctx context.Context) (string, error) {
				e.check(ctx, "supplier "+v)
				return v, nil
			})
		}
		m := flow.FlatMap(supplier("foo"), func(_ context.Context, foo string) flow.Mono[[2]string] {
			return flow.Map(supplier("bar"), func(_ context.Context, bar string) ([2]string, error) {
				return [2]string{foo, bar}, nil
			})
		}).PublishOn(e.single)

		v, err := block(e, addCallbacks(e, m, md), md)
		require.NoError(t, err)
		assert.Equal(t, [2]string{"foo", "bar"}, v)
	})
}

func TestDelayedErrorOnOtherLane(t *testing.T) {
	forEachMode(t, func(t *testing.T, e *env, md mode) {
		lanes := make(chan string, 1)
		errs := make(chan error, 1)
		m := flow.Map(flow.Just("Hello").DelayElement(20*time.Millisecond, e.single), func(ctx context.Context, s string) (string, error) {
			e.check(ctx, "map")
			lane, _ := reqctx.LaneFrom(ctx)
			lanes <- lane.Name()
			return "", errAnticipated
		}).DoOnError(func(ctx context.Context, err error) {
			e.check(ctx, "inner error")
			errs <- err
		})

		_, err := block(e, addCallbacks(e, m, md), md)
		assert.ErrorIs(t, err, errAnticipated)
		assert.Equal(t, "single-0", <-lanes)
		assert.ErrorIs(t, <-errs, errAnticipated)
		assert.False(t, e.exists(e.ctx))
	})
}

func TestCleanUpAfterErrorOnSchedulerLane(t *testing.T) {
	e := newEnv(t)
	m := flow.Map(flow.Just("Hello").DelayElement(20*time.Millisecond, e.single), func(_ context.Context, s string) (string, error) {
		if s == "Hello" {
			panic("unexpected")
		}
		return s, nil
	})

	_, err := ContextWrite(m, e.rc).Block(e.ctx)
	require.Error(t, err)
	assert.False(t, e.exists(e.ctx))
	e.assertCleanedUp()
}

func TestCleanUpAfterErrorOnMainLane(t *testing.T) {
	e := newEnv(t)
	m := flow.Map(flow.Just("Hello"), func(_ context.Context, s string) (string, error) {
		if s == "Hello" {
			panic("unexpected")
		}
		return s, nil
	})

	_, err := ContextWrite(m, e.rc).Block(e.ctx)
	require.Error(t, err)
	assert.False(t, e.exists(e.ctx))
	assert.Empty(t, e.storage.Holders(e.rc))
}

func TestCancelBeforeFirstValue(t *testing.T) {
	e := newEnv(t)

	var inCancel *reqctx.Context
	canceled := make(chan struct{})
	m := flow.Just("late").DelayElement(time.Hour, e.single).
		DoOnCancel(func() {
			// cancel hooks never see the propagated request context
			inCancel = reqctx.Current(e.ctx)
			close(canceled)
		})

	sub := ContextWrite(m, e.rc).Subscribe(e.ctx)
	sub.Cancel()
	<-canceled
	_, err := sub.Get()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, inCancel)
	e.assertCleanedUp()
}

func TestCapture_NothingCurrent(t *testing.T) {
	e := newEnv(t)

	v, err := ContextCapture(flow.FromFunc(func(ctx context.Context) (bool, error) {
		return reqctx.Current(ctx) == nil, nil
	})).Block(e.ctx)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestRestoresPreviousContext(t *testing.T) {
	e := newEnv(t)
	outer := reqctx.New(reqctx.Operation{Method: "POST", Path: "/outer"})
	scope, err := outer.Push(e.ctx)
	require.NoError(t, err)
	defer scope.Close()

	v, err := ContextWrite(flow.FromFunc(func(ctx context.Context) (*reqctx.Context, error) {
		return reqctx.Current(ctx), nil
	}), e.rc).Block(e.ctx)
	require.NoError(t, err)
	assert.Same(t, e.rc, v)
	assert.Same(t, outer, reqctx.Current(e.ctx))
}

func TestGo(t *testing.T) {
	e := newEnv(t)
	scope, err := e.rc.Push(e.ctx)
	require.NoError(t, err)

	got := make(chan bool, 1)
	require.NoError(t, Go(e.ctx, e.single, func(ctx context.Context) {
		got <- e.exists(ctx)
	}))
	scope.Close()

	assert.True(t, <-got)
	e.assertCleanedUp()
}

func TestFromMeta(t *testing.T) {
	_, ok := FromMeta(flow.Meta{})
	assert.False(t, ok)

	rc := reqctx.New(reqctx.Operation{Method: "GET", Path: "/"})
	got, ok := FromMeta(flow.Meta{}.Put(metaKey{}, rc))
	require.True(t, ok)
	assert.Same(t, rc, got)
}
