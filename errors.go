package corosock

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedSocket indicates a socket family or type other
	// than AF_INET/AF_INET6 and SOCK_STREAM/SOCK_DGRAM.
	ErrUnsupportedSocket = errors.New("corosock: unsupported socket family or type")

	// ErrClosed indicates an operation on a closed Socket.
	ErrClosed = errors.New("corosock: use of closed socket")
)

// PanicError is the error a task fails with when its body panics.
type PanicError struct {
	Value any    // Value passed to panic
	Stack []byte // Stack of the panicking task, if captured
}

func newPanicError(p any, stack []byte) *PanicError {
	return &PanicError{Value: p, Stack: stack}
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if ds, ok := e.Value.(interface{ DebugString() string }); ok {
		return "corosock: task panicked: " + ds.DebugString()
	}
	return fmt.Sprintf("corosock: task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error, so errors.Is
// and errors.As see through the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
