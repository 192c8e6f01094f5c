package corosock

import "github.com/gammazero/deque"

// sema is a counting semaphore for tasks of one scheduler. Waiters
// queue up in arrival order and poll for their turn by yielding, the
// same suspend-and-retry shape the readiness polls use.
type sema struct {
	noCopy noCopy             // Prevents copying of the semaphore
	v      uint32             // Value (available resources)
	w      deque.Deque[*Task] // Waiting tasks queue
}

// acquire takes one unit for t. If none is available, or other tasks
// are already waiting, t joins the queue and yields until it is at
// the front and a unit has been released.
func (s *sema) acquire(t *Task) {
	if s.v > 0 && s.w.Len() == 0 {
		s.v--
		return
	}

	s.w.PushBack(t)
	for s.v == 0 || s.w.Front() != t {
		t.Yield()
	}
	s.w.PopFront()
	s.v--
}

// release returns one unit. The task at the front of the queue picks
// it up on its next step.
func (s *sema) release() {
	s.v++
}

// waiting returns the number of queued tasks.
func (s *sema) waiting() int {
	return s.w.Len()
}
