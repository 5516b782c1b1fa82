package scheduler

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	stateRunning int32 = iota
	stateStopped
)

// Pool is a fixed set of worker goroutines, each owning one lane, fed from an
// unbounded FIFO queue.
type Pool struct {
	name string
	opts options

	state atomic.Int32

	mu    sync.Mutex
	cond  *sync.Cond
	queue []Task

	wg sync.WaitGroup
}

var _ Scheduler = (*Pool)(nil)

// NewPool starts a pool of workers. workers below 1 is treated as 1.
func NewPool(name string, workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		name: name,
		opts: newOptions(opts),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(p.name + "-" + strconv.Itoa(i))
	}
	return p
}

// NewSingle starts a pool with a single worker lane.
func NewSingle(name string, opts ...Option) *Pool {
	return NewPool(name, 1, opts...)
}

// Schedule queues task. It returns ErrClosed once Close has been called.
func (p *Pool) Schedule(task Task) error {
	p.mu.Lock()
	if p.state.Load() == stateStopped {
		p.mu.Unlock()
		p.opts.logger.Warn().Str("scheduler", p.name).Msg("scheduler: task rejected, pool is closed")
		return errors.WithStack(ErrClosed)
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

func (p *Pool) ScheduleAfter(d time.Duration, task Task, rejected func(err error)) func() bool {
	return scheduleAfter(p, d, task, rejected)
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.state.CompareAndSwap(stateRunning, stateStopped) {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) work(name string) {
	defer p.wg.Done()

	lane := p.opts.storage.NewLane(name)
	defer func() {
		logRelease(p.opts.logger, p.opts.storage.Release(lane))
	}()

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		runOnLane(&p.opts, lane, task)
	}
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 {
		if p.state.Load() == stateStopped {
			return nil, false
		}
		p.cond.Wait()
	}
	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}
