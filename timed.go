// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"container/heap"
	"sync"
	"time"
)

// CBResult is what a timed callback returns to steer rescheduling.
type CBResult int

const (
	// CBMore asks the scheduler to invoke the callback again one
	// period from now.
	CBMore = CBResult(iota)

	// CBLast asks the scheduler to unschedule the task.
	CBLast
)

// TimedCallback is a periodic callback driven by the [*Scheduler] thread.
// The now argument is the wall-clock time of the invocation and arg is the
// value given to [*Scheduler.Schedule].
type TimedCallback func(now time.Time, arg any) CBResult

// TimedTask is a handle on a scheduled callback.
type TimedTask struct {
	// mu serializes invocations against Cancel.
	mu sync.Mutex

	// canceled is set by Cancel; checked before every invocation.
	canceled bool

	// released guards the single release of the argument reference.
	released bool

	period time.Duration
	when   time.Time
	cb     TimedCallback
	arg    any
	argRC  *RefCounted

	// index is the task's position in the scheduler heap, -1 when
	// not queued.
	index int
}

// Cancel unschedules the task. It is idempotent and safe to call from any
// goroutine. It may race with an invocation already in progress, but it
// guarantees that no new invocation begins after it returns.
func (t *TimedTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
	t.releaseLocked()
}

// invoke runs the callback unless the task was canceled, and reports
// whether the task should be rescheduled.
func (t *TimedTask) invoke(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return false
	}
	if t.cb(now, t.arg) == CBLast {
		t.canceled = true
		t.releaseLocked()
		return false
	}
	return true
}

func (t *TimedTask) releaseLocked() {
	if !t.released {
		t.released = true
		if t.argRC != nil {
			t.argRC.DecRef()
		}
	}
}

// Scheduler invokes periodic callbacks on a dedicated goroutine.
//
// Construct via [NewScheduler]; stop via [*Scheduler.Shutdown].
type Scheduler struct {
	mu      sync.Mutex
	tasks   taskHeap
	wakeup  chan struct{}
	done    chan struct{}
	stopped bool

	// TimeNow is the function to get the current time (configurable
	// for testing). Set by [NewScheduler] to [time.Now].
	TimeNow func() time.Time
}

// NewScheduler creates a [*Scheduler] and starts its goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		wakeup:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		TimeNow: time.Now,
	}
	go s.run()
	return s
}

// Schedule arranges for cb to be invoked at now + k*period for k=1,2,...
// until the returned task is canceled or the callback returns [CBLast].
//
// When argRC is not nil the scheduler holds one reference on it for the
// task's lifetime, so the callback's receiver cannot be destroyed while an
// invocation may still begin. The caller must have taken that reference
// before calling Schedule; it is released when the task unschedules.
func (s *Scheduler) Schedule(period time.Duration, cb TimedCallback, arg any, argRC *RefCounted) *TimedTask {
	t := &TimedTask{
		period: period,
		when:   s.TimeNow().Add(period),
		cb:     cb,
		arg:    arg,
		argRC:  argRC,
		index:  -1,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		t.Cancel()
		return t
	}
	heap.Push(&s.tasks, t)
	s.mu.Unlock()
	s.kick()
	return t
}

// Shutdown cancels all tasks and stops the scheduler goroutine, waiting
// for it to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	pending := make([]*TimedTask, len(s.tasks))
	copy(pending, s.tasks)
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range pending {
		t.Cancel()
	}
	s.kick()
	<-s.done
}

func (s *Scheduler) kick() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		var next *TimedTask
		if len(s.tasks) > 0 {
			next = s.tasks[0]
		}
		s.mu.Unlock()

		if next == nil {
			<-s.wakeup
			continue
		}

		now := s.TimeNow()
		if wait := next.when.Sub(now); wait > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wakeup:
			}
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if len(s.tasks) == 0 || s.tasks[0] != next {
			s.mu.Unlock()
			continue
		}
		heap.Pop(&s.tasks)
		s.mu.Unlock()

		if next.invoke(now) {
			next.when = now.Add(next.period)
			s.mu.Lock()
			if !s.stopped {
				heap.Push(&s.tasks, next)
				s.mu.Unlock()
				continue
			}
			s.mu.Unlock()
			// Shutdown raced with the invocation; release the
			// task's argument reference.
			next.Cancel()
		}
	}
}

// taskHeap is a min-heap of tasks ordered by next fire time.
type taskHeap []*TimedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*TimedTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
