// Package corosock provides a cooperative, single-threaded task
// scheduler and a non-blocking socket wrapper whose I/O calls suspend
// the calling task instead of the thread. Many network-bound tasks
// make progress on one goroutine by polling their own descriptor for
// readiness each time the scheduler gives them a step.
//
// Key components:
//
//   - Scheduler: a FIFO queue of ready tasks and the run loop that
//     resumes them one step at a time until the queue is empty.
//     Schedulers are independent values; nothing is process-global
//     apart from the package logger.
//
//   - Task: a coroutine-backed unit of work. A task gives up control
//     only at a suspension point: Yield, Spawn, a readiness poll or
//     one of the sync primitives. Spawn puts the new task at the head
//     of the queue and suspends the caller once, so the child always
//     runs before the caller continues.
//
//   - Socket: owns one non-blocking descriptor. Accept, Recv, Send and
//     SendAll wait for readiness with WaitForRead/WaitForWrite and
//     then make a single non-blocking system call. Connect starts the
//     connection and does not confirm it.
//
//   - Synchronization primitives: Mutex, WaitGroup, ErrGroup and
//     Task.Do for single-flight calls, all built on Yield.
//
// Readiness is checked with a zero-timeout poll on one descriptor per
// task per step. There is no event loop keyed by descriptor, so an
// idle task still costs one poll per pass through the queue.
//
// A task that returns an error or panics is dropped by the run loop
// without affecting other tasks. The failure is logged, counted and
// kept on the task handle (Task.Err); it is never re-raised to the
// caller of Run.
package corosock
