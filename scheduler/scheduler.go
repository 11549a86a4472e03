// Package scheduler dispatches registered periodic callbacks from the main
// tick, ordered by priority (spec §4.9). The automation engine's per-tick
// evaluation does not run on it: the top-level system's Process calls the
// engine directly after the scheduler's own Process.
package scheduler

import (
	"errors"

	"github.com/google/uuid"
)

// Priority orders task dispatch within a tick: critical runs before high,
// high before normal, normal before low (spec §4.9 Dispatch).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Func is invoked with the task's Param when it fires.
type Func func(param any)

// Task is one registered periodic (or one-shot, when IntervalMs == 0) callback.
type Task struct {
	ID         string
	fn         Func
	param      any
	intervalMs int64
	priority   Priority
	enabled    bool
	lastRun    int64
}

// ErrCapacityExhausted is returned by Create once the scheduler holds
// MaxTasks entries.
var ErrCapacityExhausted = errors.New("scheduler: capacity exhausted")

// Scheduler holds a fixed-capacity set of tasks, dispatched from Process.
type Scheduler struct {
	maxTasks int
	tasks    []*Task
}

// New initializes a Scheduler with the given task capacity (spec §4.9 init).
func New(maxTasks int) *Scheduler {
	return &Scheduler{maxTasks: maxTasks}
}

// Create registers fn to run every intervalMs milliseconds (0 = one-shot) at
// the given priority, returning its task id.
func (s *Scheduler) Create(fn Func, param any, intervalMs int64, priority Priority) (string, error) {
	if len(s.tasks) >= s.maxTasks {
		return "", ErrCapacityExhausted
	}
	t := &Task{
		ID:         uuid.NewString(),
		fn:         fn,
		param:      param,
		intervalMs: intervalMs,
		priority:   priority,
		enabled:    true,
	}
	s.tasks = append(s.tasks, t)
	return t.ID, nil
}

// SetEnabled toggles whether a task fires on subsequent ticks.
func (s *Scheduler) SetEnabled(id string, enabled bool) bool {
	for _, t := range s.tasks {
		if t.ID == id {
			t.enabled = enabled
			return true
		}
	}
	return false
}

// Delete removes a task by id.
func (s *Scheduler) Delete(id string) bool {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return true
		}
	}
	return false
}

var priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// Process iterates priorities from highest to lowest, and within a priority
// iterates tasks in slot order; a task fires when it has never run or its
// interval has elapsed. One-shot tasks (intervalMs == 0) are deleted after
// firing. Callbacks run to completion before the next is considered — there
// is no preemption (spec §4.9 Dispatch, §5).
func (s *Scheduler) Process(nowMs int64) {
	var oneShots []string
	for _, p := range priorityOrder {
		for _, t := range s.tasks {
			if t.priority != p || !t.enabled {
				continue
			}
			due := t.lastRun == 0 || nowMs-t.lastRun >= t.intervalMs
			if !due {
				continue
			}
			t.fn(t.param)
			t.lastRun = nowMs
			if t.intervalMs == 0 {
				oneShots = append(oneShots, t.ID)
			}
		}
	}
	for _, id := range oneShots {
		s.Delete(id)
	}
}

// Len reports how many tasks are currently registered.
func (s *Scheduler) Len() int { return len(s.tasks) }
