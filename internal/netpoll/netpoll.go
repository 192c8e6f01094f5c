//go:build unix

// Package netpoll answers "can this descriptor be read from, or
// written to, right now?" with a zero-timeout poll(2) on a single
// descriptor. It never blocks and keeps no state between calls.
package netpoll

import (
	"golang.org/x/sys/unix"
)

// Readable reports whether fd has data, a pending connection, a
// hang-up or an error condition, i.e. whether the next read or accept
// returns without blocking.
func Readable(fd int) (bool, error) {
	return ready(fd, unix.POLLIN)
}

// Writable reports whether the next write on fd returns without
// blocking, including when it would fail immediately.
func Writable(fd int) (bool, error) {
	return ready(fd, unix.POLLOUT)
}

func ready(fd int, events int16) (bool, error) {
	// poll(2) silently skips negative descriptors.
	if fd < 0 {
		return false, unix.EBADF
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}

	n, err := unix.Poll(fds, 0)
	switch {
	case err == unix.EINTR:
		return false, nil
	case err != nil:
		return false, err
	case n == 0:
		return false, nil
	}

	revents := fds[0].Revents
	if revents&unix.POLLNVAL != 0 {
		return false, unix.EBADF
	}
	return revents&(events|unix.POLLERR|unix.POLLHUP) != 0, nil
}
