package timectrl

import (
	"errors"
	"sync"
	"time"
)

// ErrGroupClosed is returned when scheduling on a Group that was closed.
var ErrGroupClosed = errors.New("timectrl: task group closed")

// PeriodicTask runs fn every interval between Start and Stop. Runs never
// overlap: the next run is scheduled after the current one returns.
type PeriodicTask struct {
	clock    Clock
	interval time.Duration
	fn       func(time.Time)

	mu      sync.Mutex
	running bool
	gen     uint64
	timer   Timer
}

// NewPeriodicTask constructs a stopped periodic task.
func NewPeriodicTask(clock Clock, interval time.Duration, fn func(time.Time)) *PeriodicTask {
	if clock == nil {
		clock = Real()
	}
	return &PeriodicTask{clock: clock, interval: interval, fn: fn}
}

// Start schedules the first run one interval from now. Starting a running
// task is a no-op and returns false.
func (p *PeriodicTask) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.interval <= 0 {
		return false
	}
	p.running = true
	p.gen++
	p.scheduleLocked(p.gen)
	return true
}

// Stop cancels the pending run. A run already in progress completes but
// does not reschedule.
func (p *PeriodicTask) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Running reports whether the task is started.
func (p *PeriodicTask) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicTask) scheduleLocked(gen uint64) {
	p.timer = p.clock.AfterFunc(p.interval, func() { p.fire(gen) })
}

func (p *PeriodicTask) fire(gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.fn != nil {
		p.fn(p.clock.Now())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && gen == p.gen {
		p.scheduleLocked(gen)
	}
}

// DelayedTask runs fn once after a delay unless stopped first.
type DelayedTask struct {
	mu     sync.Mutex
	timer  Timer
	done   bool
	onDone func(*DelayedTask)
	fn     func(time.Time)
	clock  Clock
}

// NewDelayedTask schedules fn to run after d on clock.
func NewDelayedTask(clock Clock, d time.Duration, fn func(time.Time)) *DelayedTask {
	return newDelayedTask(clock, d, fn, nil)
}

func newDelayedTask(clock Clock, d time.Duration, fn func(time.Time), onDone func(*DelayedTask)) *DelayedTask {
	if clock == nil {
		clock = Real()
	}
	t := &DelayedTask{fn: fn, onDone: onDone, clock: clock}
	t.mu.Lock()
	t.timer = clock.AfterFunc(d, t.fire)
	t.mu.Unlock()
	return t
}

// Stop cancels the task. It reports whether the task was still pending.
func (t *DelayedTask) Stop() bool {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	t.timer.Stop()
	onDone := t.onDone
	t.mu.Unlock()

	if onDone != nil {
		onDone(t)
	}
	return true
}

// Pending reports whether the task has neither fired nor been stopped.
func (t *DelayedTask) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *DelayedTask) fire() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	onDone := t.onDone
	t.mu.Unlock()

	if onDone != nil {
		onDone(t)
	}
	if t.fn != nil {
		t.fn(t.clock.Now())
	}
}

// Group owns a set of periodic and delayed tasks so they can be released
// together. After Close no task in the group fires and new tasks are refused.
type Group struct {
	clock Clock

	mu       sync.Mutex
	closed   bool
	periodic []*PeriodicTask
	delayed  map[*DelayedTask]struct{}
}

// NewGroup constructs a Group scheduling on clock (wall clock when nil).
func NewGroup(clock Clock) *Group {
	if clock == nil {
		clock = Real()
	}
	return &Group{
		clock:   clock,
		delayed: make(map[*DelayedTask]struct{}),
	}
}

// Clock returns the group's time source.
func (g *Group) Clock() Clock { return g.clock }

// Every starts a periodic task owned by the group.
func (g *Group) Every(interval time.Duration, fn func(time.Time)) (*PeriodicTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGroupClosed
	}
	task := NewPeriodicTask(g.clock, interval, fn)
	task.Start()
	g.periodic = append(g.periodic, task)
	return task, nil
}

// After schedules a one-shot task owned by the group. The group forgets the
// task once it fires or is stopped.
func (g *Group) After(d time.Duration, fn func(time.Time)) (*DelayedTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGroupClosed
	}
	task := newDelayedTask(g.clock, d, fn, g.forget)
	if task.Pending() {
		g.delayed[task] = struct{}{}
	}
	return task, nil
}

// Pending returns the number of one-shot tasks that have not fired yet.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.delayed)
}

// Close stops every task in the group. It is safe to call more than once.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	periodic := g.periodic
	delayed := make([]*DelayedTask, 0, len(g.delayed))
	for t := range g.delayed {
		delayed = append(delayed, t)
	}
	g.periodic = nil
	g.mu.Unlock()

	for _, p := range periodic {
		p.Stop()
	}
	for _, t := range delayed {
		t.Stop()
	}
}

func (g *Group) forget(t *DelayedTask) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.delayed, t)
}
