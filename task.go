package corosock

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/trace"
	"strings"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "corosock-task"
	taskTraceRegionType = "corosock-region"
	taskTraceCategory   = "corosock"
)

// TaskFunc is the body of a Task. It runs on the scheduler's thread
// of control and gives it up only at suspension points: Yield, Spawn,
// the readiness polls and the sync primitives built on them.
type TaskFunc func(ctx context.Context, t *Task) error

// State is the lifecycle position of a Task.
type State uint8

const (
	// StateReady means the task sits in the queue waiting for a step.
	StateReady State = iota
	// StateRunning means the run loop is currently resuming the task.
	StateRunning
	// StateSuspended means the task yielded and is about to be
	// re-enqueued at the tail.
	StateSuspended
	// StateDone means the task body returned nil.
	StateDone
	// StateFailed means the task body returned an error or panicked.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// stepResult is what a single resumption of a Task reports back to
// the run loop.
type stepResult uint8

const (
	stepSuspended stepResult = iota // Yielded; goes back to the tail
	stepDone                        // Body returned nil
	stepFailed                      // Body returned an error or panicked
)

// Task is a suspendable unit of sequential logic driven by a
// Scheduler. A *Task is handed to its own TaskFunc; other code holds
// it only to observe State and Err once the scheduler has drained.
type Task struct {
	id      uint64                          // Sequence number, for logs only
	ctx     context.Context                 // Context carrying the task itself
	fn      TaskFunc                        // Task body
	sched   *Scheduler                      // Owning scheduler
	parent  *Task                           // Spawning task, nil for roots
	resume  func(struct{}) (struct{}, bool) // Coroutine resume
	cancel  func()                          // Coroutine cancel
	suspend func() struct{}                 // Coroutine suspend, set on first step
	state   State
	err     error
}

func newTask(ctx context.Context, fn TaskFunc, sched *Scheduler, parent *Task) *Task {
	sched.seq++
	task := &Task{
		id:     sched.seq,
		fn:     fn,
		sched:  sched,
		parent: parent,
		state:  StateReady,
	}

	task.ctx = withTaskContext(ctx, task)

	task.resume, task.cancel = coro.New(
		func(_ func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer region.End()

			defer func() {
				if p := recover(); p != nil {
					task.err = newPanicError(p, debug.Stack())
				}
			}()

			task.suspend = suspend
			task.err = task.fn(task.ctx, task)

			return
		},
	)

	return task
}

// ID returns the task's sequence number within its scheduler.
func (t *Task) ID() uint64 {
	return t.id
}

// Context returns the context the task body was started with.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Scheduler returns the scheduler driving the task.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// State reports where the task is in its lifecycle.
func (t *Task) State() State {
	return t.state
}

// Err returns the error the task failed with, or nil. A recovered
// panic is reported as a *PanicError.
func (t *Task) Err() error {
	return t.err
}

// Finished reports whether the task reached StateDone or StateFailed.
func (t *Task) Finished() bool {
	return t.state == StateDone || t.state == StateFailed
}

// Yield suspends the task once. The run loop puts it back at the tail
// of the queue and resumes it after everything currently ahead of it.
func (t *Task) Yield() {
	if t.sched.current != t {
		panic("corosock: Yield called outside of the running task")
	}
	t.Log("YIELD")
	t.suspend()
}

// Spawn registers fn as a new task at the head of the queue and then
// suspends the caller once, so the new task always gets a step before
// the caller continues past the spawn point.
func (t *Task) Spawn(fn TaskFunc) *Task {
	return t.spawnctx(t.ctx, fn)
}

// SpawnWithContext is Spawn with an explicit context for the child.
func (t *Task) SpawnWithContext(ctx context.Context, fn TaskFunc) *Task {
	return t.spawnctx(ctx, fn)
}

func (t *Task) spawnctx(ctx context.Context, fn TaskFunc) *Task {
	child := newTask(ctx, fn, t.sched, t)
	child.Log("SPAWN")
	t.sched.pushFront(child)
	t.Yield()
	return child
}

// Do runs fn once per key among concurrently calling tasks of the
// same scheduler. Callers arriving while a call is in flight wait for
// it and share its result.
func (t *Task) Do(key any, fn func() (any, error)) (any, error, bool) {
	t.Logf("DO %v", key)
	return t.sched.single.do(t, key, fn)
}

// Group returns a new ErrGroup whose tasks are spawned by t.
func (t *Task) Group() ErrGroup {
	return newErrGroup(t)
}

// step resumes the task once and classifies the outcome. Panics in
// the body are recovered inside the coroutine; the recover here only
// catches what the coroutine machinery itself re-raises.
func (t *Task) step() (res stepResult) {
	t.state = StateRunning

	defer func() {
		if p := recover(); p != nil {
			t.err = newPanicError(p, nil)
			t.state = StateFailed
			res = stepFailed
		}
	}()

	if _, ok := t.resume(struct{}{}); ok {
		t.state = StateSuspended
		return stepSuspended
	}

	if t.err != nil {
		t.state = StateFailed
		return stepFailed
	}

	t.state = StateDone
	return stepDone
}

// Log writes msg to the execution trace, prefixed with the task's
// spawn path. It is a no-op unless tracing is enabled.
func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

// Logf is the formatted variant of Log.
func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *Task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	fmt.Fprintf(sb, "%d|", t.id)
}
