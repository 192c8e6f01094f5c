package corosock

import (
	"context"
	"runtime/trace"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

// Scheduler drives Tasks cooperatively on the calling goroutine. It
// owns a FIFO queue of ready tasks; RunAll pops the front task,
// resumes it for one step and, if it suspended, appends it at the
// tail again. A Scheduler and everything it runs must be used from a
// single goroutine.
type Scheduler struct {
	name    string             // Label for logs and metrics
	log     *zap.Logger        // Structured logger
	metrics *schedulerMetrics  // Nil when metrics are disabled
	queue   deque.Deque[*Task] // Ready tasks
	single  *singleFlight      // Shared by all tasks for Task.Do
	current *Task              // Task being resumed, nil between steps
	running bool               // Set while RunAll drains the queue
	seq     uint64             // Last assigned task id
	stats   Stats              // Lifetime counters
}

// Stats holds lifetime counters of a Scheduler.
type Stats struct {
	Spawned     uint64 // Tasks created through Run, Submit or Spawn
	Resumptions uint64 // Single steps performed by the run loop
	Completed   uint64 // Tasks that returned nil
	Failed      uint64 // Tasks that returned an error or panicked
}

// New creates a Scheduler with DefaultConfig.
func New() *Scheduler {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Scheduler from cfg. Zero fields fall back
// to their defaults.
func NewWithConfig(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		name:   cfg.Name,
		log:    cfg.Logger.With(zap.String("scheduler", cfg.Name)),
		single: newSingleFlight(),
	}

	if cfg.Registerer != nil {
		s.metrics = newSchedulerMetrics(cfg.Registerer, cfg.Name)
	}

	return s
}

// Name returns the scheduler's label.
func (s *Scheduler) Name() string {
	return s.name
}

// Run enqueues fn as a new task at the tail and drains the queue.
// It returns once the task and everything it transitively spawned
// has finished. There is no termination guarantee if tasks keep
// spawning forever.
func (s *Scheduler) Run(ctx context.Context, fn TaskFunc) *Task {
	task := s.Submit(ctx, fn)
	s.RunAll(ctx)
	return task
}

// Submit enqueues fn as a new task at the tail without running it.
func (s *Scheduler) Submit(ctx context.Context, fn TaskFunc) *Task {
	task := newTask(ctx, fn, s, nil)
	s.log.Debug("task submitted", zap.Uint64("task", task.id))
	s.pushBack(task)
	return task
}

// RunAll resumes queued tasks one step at a time until the queue is
// empty. A task that fails is dropped and the loop carries on with
// the rest; its error stays available through Task.Err.
func (s *Scheduler) RunAll(ctx context.Context) {
	if s.running {
		panic("corosock: scheduler already running")
	}

	s.running = true
	defer func() { s.running = false }()

	ctx, tracer := trace.NewTask(ctx, taskTraceTaskType)
	defer tracer.End()

	trace.Logf(ctx, taskTraceCategory, "LOOP %s", s.name)

	for s.queue.Len() > 0 {
		task := s.queue.PopFront()

		s.current = task
		res := task.step()
		s.current = nil

		s.stats.Resumptions++
		s.metrics.resumed()

		switch res {
		case stepSuspended:
			task.state = StateReady
			s.queue.PushBack(task)
		case stepDone:
			s.stats.Completed++
			s.metrics.completed()
			task.Log("DONE")
			s.log.Debug("task done", zap.Uint64("task", task.id))
		case stepFailed:
			s.stats.Failed++
			s.metrics.failed()
			task.Log("FAILED")
			s.log.Warn("task failed",
				zap.Uint64("task", task.id),
				zap.Error(task.err))
		}

		s.metrics.depth(s.queue.Len())
	}

	trace.Log(ctx, taskTraceCategory, "LOOP DONE")
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Close discards tasks that were submitted but never drained,
// releasing their coroutines. It must not be called while RunAll is
// in progress.
func (s *Scheduler) Close() {
	if s.running {
		panic("corosock: Close called on a running scheduler")
	}

	for s.queue.Len() > 0 {
		task := s.queue.PopFront()
		task.cancel()
		s.log.Debug("task discarded", zap.Uint64("task", task.id))
	}

	s.metrics.depth(0)
}

func (s *Scheduler) pushBack(task *Task) {
	s.stats.Spawned++
	s.metrics.spawned()
	s.queue.PushBack(task)
	s.metrics.depth(s.queue.Len())
}

func (s *Scheduler) pushFront(task *Task) {
	s.stats.Spawned++
	s.metrics.spawned()
	s.queue.PushFront(task)
	s.metrics.depth(s.queue.Len())
}
