package corosock

// WaitGroup is used to wait for a collection of tasks to finish.
// Tasks call Add(1) before they are spawned and Done() when they
// finish. Another task calls Wait to yield until all have finished.
type WaitGroup struct {
	noCopy noCopy // Prevents copying of the WaitGroup
	v      int32  // Counter for the number of tasks
}

// Add adds delta to the WaitGroup counter. If the counter goes
// negative, Add panics.
func (wg *WaitGroup) Add(delta int) {
	wg.v += int32(delta)

	if wg.v < 0 {
		panic("corosock: negative WaitGroup counter")
	}
}

// Done decrements the WaitGroup counter by one. It's a convenience
// method equivalent to Add(-1).
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait suspends the calling task until the WaitGroup counter is
// zero. If the counter is already zero, it returns immediately. The
// counter is re-checked on every step, so an Add that lands before
// the waiter is resumed keeps it waiting.
func (wg *WaitGroup) Wait(task *Task) {
	for wg.v > 0 {
		task.Yield()
	}
}
