// Package scheduler runs periodic tasks cooperatively on the caller's
// goroutine. Nothing here blocks or starts goroutines: the owner calls
// Execute from its run loop and every due task runs inline to completion.
package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Forever is the iteration count of a task that never runs out.
const Forever = -1

// Task is a periodic action owned by a Scheduler.
type Task struct {
	Interval   time.Duration
	Iterations int
	Action     func()

	enabled bool
	runs    int
	next    time.Time
	sched   *Scheduler
}

// NewTask returns a disabled task. Iterations is the number of runs before
// the task disables itself, or Forever.
func NewTask(interval time.Duration, iterations int, action func()) *Task {
	return &Task{
		Interval:   interval,
		Iterations: iterations,
		Action:     action,
	}
}

// Enable schedules the task to run on the next Execute and every Interval
// after that.
func (t *Task) Enable() {
	t.enabled = true
	t.runs = 0
	if t.sched != nil {
		t.next = t.sched.clock.Now()
	}
}

func (t *Task) Disable() {
	t.enabled = false
}

func (t *Task) Enabled() bool {
	return t.enabled
}

// Runs is the number of times the task has run since it was last enabled.
func (t *Task) Runs() int {
	return t.runs
}

// Scheduler owns a set of tasks for the lifetime of a process.
type Scheduler struct {
	// Clock is the time source. Tests swap in a mock.
	clock clock.Clock
	tasks []*Task
}

func New(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{clock: c}
}

// AddTask hands t to the scheduler. Tasks run in the order they were added.
func (s *Scheduler) AddTask(t *Task) {
	t.sched = s
	if t.enabled {
		t.next = s.clock.Now()
	}
	s.tasks = append(s.tasks, t)
}

// Execute runs every enabled task that is due and reports whether any ran.
// A task that fell several intervals behind runs once and is rescheduled
// from now.
func (s *Scheduler) Execute() bool {
	ran := false
	for _, t := range s.tasks {
		if !t.enabled {
			continue
		}
		now := s.clock.Now()
		if now.Before(t.next) {
			continue
		}
		t.runs++
		if t.Iterations != Forever && t.runs >= t.Iterations {
			t.enabled = false
		}
		t.next = t.next.Add(t.Interval)
		if !t.next.After(now) {
			t.next = now.Add(t.Interval)
		}
		if t.Action != nil {
			t.Action()
		}
		ran = true
	}
	return ran
}

// Next reports how long until the earliest enabled task is due, and false
// when no task is enabled.
func (s *Scheduler) Next() (time.Duration, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, t := range s.tasks {
		if !t.enabled {
			continue
		}
		if !found || t.next.Before(earliest) {
			earliest = t.next
			found = true
		}
	}
	if !found {
		return 0, false
	}
	d := earliest.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}
