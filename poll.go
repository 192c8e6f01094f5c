//go:build unix

package corosock

import (
	"github.com/webriots/corosock/internal/netpoll"
)

// Descriptor is anything backed by an OS file descriptor.
type Descriptor interface {
	Fd() int
}

// WaitForRead suspends t until d is readable. Each unready check
// costs the task one trip through the scheduler queue; there is no
// blocking wait and no batching of descriptors across tasks.
func WaitForRead(t *Task, d Descriptor) error {
	return waitFor(t, d, netpoll.Readable)
}

// WaitForWrite suspends t until d is writable.
func WaitForWrite(t *Task, d Descriptor) error {
	return waitFor(t, d, netpoll.Writable)
}

// waitFor re-reads d.Fd() on every pass: a Socket closed by another
// task while t was suspended reports -1 and ends the wait.
func waitFor(t *Task, d Descriptor, ready func(int) (bool, error)) error {
	for {
		fd := d.Fd()
		if fd < 0 {
			return ErrClosed
		}
		ok, err := ready(fd)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		t.Yield()
	}
}
