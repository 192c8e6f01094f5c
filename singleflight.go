package corosock

// flight is one in-progress Task.Do call. Tasks that ask for the same
// key while it runs park on wg and read val/err when it finishes.
type flight struct {
	wg      WaitGroup
	val     any
	err     error
	waiters int
}

// singleFlight maps keys to in-progress calls for one scheduler. It
// needs no locking: only the running task touches it.
type singleFlight struct {
	m map[any]*flight
}

func newSingleFlight() *singleFlight {
	return &singleFlight{m: make(map[any]*flight)}
}

// do runs fn for key unless a call for key is already suspended
// somewhere, in which case task waits for that call instead. shared
// reports whether the result went to more than one task.
func (g *singleFlight) do(task *Task, key any, fn func() (any, error)) (v any, err error, shared bool) {
	if f, ok := g.m[key]; ok {
		f.waiters++
		f.wg.Wait(task)
		return f.val, f.err, true
	}

	f := new(flight)
	f.wg.Add(1)
	g.m[key] = f

	g.call(f, key, fn)
	return f.val, f.err, f.waiters > 0
}

// call runs fn and releases the key afterwards, panic or not.
func (g *singleFlight) call(f *flight, key any, fn func() (any, error)) {
	defer func() {
		f.wg.Done()
		if g.m[key] == f {
			delete(g.m, key)
		}
	}()

	f.val, f.err = fn()
}
