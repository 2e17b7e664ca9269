package vm

import (
	"sync"
	"time"
)

// DefaultReductions is the reduction budget granted per scheduling slice.
// Scheduling decisions happen only at reduction boundaries.
const DefaultReductions = 1024

// ---------------------------------------------------------------------------
// Scheduler: run queue and timer list
// ---------------------------------------------------------------------------

// Scheduler holds the run queue of ready processes and the timer list for
// receive timeouts. The interpreter's run-queue policy lives outside the
// core; the scheduler only tracks readiness and wakeups.
type Scheduler struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []*Context

	timersMu sync.Mutex
	timers   map[*Context]time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		timers: make(map[*Context]time.Time),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// MakeReady queues a context for execution unless it is already queued or
// running. Racing producers resolve through the flag CAS: exactly one of
// them enqueues.
func (s *Scheduler) MakeReady(ctx *Context) {
	for {
		expected := ctx.flags.Load()
		if expected&uint32(Ready|Running) != 0 {
			return
		}
		if ctx.flags.CompareAndSwap(expected, expected|uint32(Ready)) {
			break
		}
	}
	s.mu.Lock()
	s.queue = append(s.queue, ctx)
	s.mu.Unlock()
	s.cond.Signal()
}

// Next pops the next ready context, or nil when the queue is empty. The
// returned context is flagged Running.
func (s *Scheduler) Next() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	ctx := s.queue[0]
	s.queue = s.queue[1:]
	ctx.UpdateFlags(^Ready, Running)
	return ctx
}

// Wait blocks until a context is ready and returns it.
func (s *Scheduler) Wait() *Context {
	s.mu.Lock()
	for len(s.queue) == 0 {
		s.cond.Wait()
	}
	ctx := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	ctx.UpdateFlags(^Ready, Running)
	return ctx
}

// QueueLen returns the number of ready contexts.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// signalMessage wakes a context that may be waiting on its mailbox. Called
// by producers after an enqueue; the flag update already happened.
func (s *Scheduler) signalMessage(ctx *Context) {
	s.MakeReady(ctx)
}

// Yield returns a running context to the back of the run queue.
func (s *Scheduler) Yield(ctx *Context) {
	ctx.UpdateFlags(^Running, NoFlags)
	s.MakeReady(ctx)
}

// ---------------------------------------------------------------------------
// Timeouts
// ---------------------------------------------------------------------------

// ScheduleTimeout arms a receive timeout, keyed by absolute deadline.
func (s *Scheduler) ScheduleTimeout(ctx *Context, d time.Duration) {
	ctx.UpdateFlags(^Running, WaitingTimeout)
	s.timersMu.Lock()
	s.timers[ctx] = time.Now().Add(d)
	ctx.timerArmed = true
	s.timersMu.Unlock()
}

// CancelTimeout disarms a pending timeout, if any. Destroy calls it at
// process termination.
func (s *Scheduler) CancelTimeout(ctx *Context) {
	s.timersMu.Lock()
	delete(s.timers, ctx)
	ctx.timerArmed = false
	s.timersMu.Unlock()
	ctx.UpdateFlags(^WaitingTimeout, NoFlags)
}

// Advance fires every timer due at now: the context is flagged
// MessageReady|TimedOut and requeued. Returns the number of fired timers.
func (s *Scheduler) Advance(now time.Time) int {
	s.timersMu.Lock()
	var due []*Context
	for ctx, deadline := range s.timers {
		if !deadline.After(now) {
			due = append(due, ctx)
		}
	}
	for _, ctx := range due {
		delete(s.timers, ctx)
		ctx.timerArmed = false
	}
	s.timersMu.Unlock()

	for _, ctx := range due {
		ctx.UpdateFlags(^WaitingTimeout, MessageReady|TimedOut)
		s.MakeReady(ctx)
	}
	return len(due)
}

// PendingTimers returns the number of armed timeouts.
func (s *Scheduler) PendingTimers() int {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return len(s.timers)
}
