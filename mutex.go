package corosock

// Mutex provides mutual exclusion for tasks. It allows only one task
// to hold the lock at a time; other tasks that attempt to acquire it
// keep yielding, in arrival order, until it is released.
type Mutex struct {
	noCopy noCopy // Prevents copying of the mutex
	r      *Task  // Task that holds the lock
	sema   sema   // Semaphore for queuing waiting tasks
}

// Lock acquires the mutex for the given task. If the mutex is already
// locked, or other tasks are queued for it, the task is suspended
// until its turn comes.
func (m *Mutex) Lock(task *Task) {
	if m.r == nil && m.sema.waiting() == 0 {
		m.r = task
		return
	}

	m.sema.acquire(task)
	m.r = task
}

// TryLock acquires the mutex only if that needs no suspension.
func (m *Mutex) TryLock(task *Task) bool {
	if m.r != nil || m.sema.waiting() > 0 {
		return false
	}
	m.r = task
	return true
}

// Unlock releases the mutex. If tasks are waiting, the first one in
// line takes it over on its next step.
func (m *Mutex) Unlock() {
	if m.r == nil {
		panic("corosock: unlock of unlocked Mutex")
	}

	m.r = nil
	if m.sema.waiting() > 0 {
		m.sema.release()
	}
}

// WaitCount returns the number of tasks waiting to acquire the mutex.
func (m *Mutex) WaitCount() int {
	return m.sema.waiting()
}
