package scheduler

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saltfishpr/resilience/reqctx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunsTasksOnOwnLanes(t *testing.T) {
	storage := reqctx.NewStorage()
	p := NewPool("test", 3, WithStorage(storage))

	var mu sync.Mutex
	lanes := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		p.Schedule(func(ctx context.Context) {
			defer wg.Done()
			lane, ok := reqctx.LaneFrom(ctx)
			if assert.True(t, ok) {
				mu.Lock()
				lanes[lane.ID()] = true
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	p.Close()

	assert.LessOrEqual(t, len(lanes), 3)
	assert.NotEmpty(t, lanes)
	assert.Equal(t, 0, storage.Len())
}

func TestPool_SingleIsFIFO(t *testing.T) {
	p := NewSingle("single", WithStorage(reqctx.NewStorage()))
	defer p.Close()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		p.Schedule(func(context.Context) {
			got = append(got, i)
			if i == 9 {
				close(done)
			}
		})
	}
	<-done
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestPool_CloseDrainsAndRejects(t *testing.T) {
	var buf bytes.Buffer
	p := NewSingle("drain", WithStorage(reqctx.NewStorage()), WithLogger(zerolog.New(&buf)))

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		p.Schedule(func(context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	p.Close()
	p.Close()
	assert.Equal(t, int32(5), ran.Load())

	err := p.Schedule(func(context.Context) { ran.Add(1) })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(5), ran.Load())
	assert.Contains(t, buf.String(), "pool is closed")
}

func TestScheduleAfter_Rejected(t *testing.T) {
	p := NewSingle("rejected", WithStorage(reqctx.NewStorage()))

	rejected := make(chan error, 2)
	p.ScheduleAfter(20*time.Millisecond, func(context.Context) {
		t.Error("task must not run on a closed pool")
	}, func(err error) { rejected <- err })
	p.Close()
	assert.ErrorIs(t, <-rejected, ErrClosed)

	p.ScheduleAfter(0, func(context.Context) {
		t.Error("task must not run on a closed pool")
	}, func(err error) { rejected <- err })
	assert.ErrorIs(t, <-rejected, ErrClosed)

	// a nil callback only drops the task
	assert.False(t, p.ScheduleAfter(0, func(context.Context) {}, nil)())
}

func TestPool_RecoversPanicsAndLeaks(t *testing.T) {
	var buf bytes.Buffer
	storage := reqctx.NewStorage()
	p := NewSingle("panic", WithStorage(storage), WithLogger(zerolog.New(&buf)))

	rc := reqctx.New(reqctx.Operation{Method: "GET", Path: "/"})
	p.Schedule(func(ctx context.Context) {
		lane, _ := reqctx.LaneFrom(ctx)
		lane.Replace(rc)
		panic("boom")
	})

	done := make(chan *reqctx.Context)
	p.Schedule(func(ctx context.Context) {
		done <- reqctx.Current(ctx)
	})
	assert.Nil(t, <-done)
	p.Close()

	assert.Contains(t, buf.String(), "task panicked")
	assert.Contains(t, buf.String(), "left a request context")
	assert.Empty(t, storage.Holders(rc))
}

func TestScheduleAfter(t *testing.T) {
	p := NewSingle("timer", WithStorage(reqctx.NewStorage()))
	defer p.Close()

	start := time.Now()
	done := make(chan time.Duration, 1)
	p.ScheduleAfter(20*time.Millisecond, func(context.Context) {
		done <- time.Since(start)
	}, nil)
	assert.GreaterOrEqual(t, <-done, 20*time.Millisecond)

	var fired atomic.Bool
	cancel := p.ScheduleAfter(time.Hour, func(context.Context) { fired.Store(true) }, nil)
	assert.True(t, cancel())
	assert.False(t, fired.Load())

	immediate := make(chan struct{})
	cancel = p.ScheduleAfter(0, func(context.Context) { close(immediate) }, nil)
	<-immediate
	assert.False(t, cancel())
}

func TestGo_EphemeralLanes(t *testing.T) {
	storage := reqctx.NewStorage()
	s := Go(WithStorage(storage))

	ids := make(chan uint64, 2)
	for i := 0; i < 2; i++ {
		s.Schedule(func(ctx context.Context) {
			lane, ok := reqctx.LaneFrom(ctx)
			assert.True(t, ok)
			ids <- lane.ID()
		})
	}
	a, b := <-ids, <-ids
	assert.NotEqual(t, a, b)

	require.Eventually(t, func() bool { return storage.Len() == 0 }, time.Second, time.Millisecond)
}

func TestWithBaseContext(t *testing.T) {
	type key struct{}
	base := context.WithValue(context.Background(), key{}, "base")
	p := NewSingle("base", WithStorage(reqctx.NewStorage()), WithBaseContext(base))
	defer p.Close()

	got := make(chan any, 1)
	p.Schedule(func(ctx context.Context) { got <- ctx.Value(key{}) })
	assert.Equal(t, "base", <-got)
}
