//go:build unix

package corosock

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultBacklog is the listen backlog Listen uses when none is given.
const DefaultBacklog = 128

// Socket owns one non-blocking OS socket. Accept, Recv, Send and
// SendAll are suspension points: they yield the calling task until
// the descriptor is ready and then make exactly one system call.
//
// A Socket has no locking. Using one Socket from two tasks at once is
// undefined; callers must hand it over explicitly.
type Socket struct {
	fd     int  // Non-blocking descriptor, -1 once closed
	family int  // AF_INET or AF_INET6
	sotype int  // SOCK_STREAM or SOCK_DGRAM
	closed bool // Set by Close
}

// NewSocket creates a socket of the given family and type and puts it
// in non-blocking mode. Only AF_INET/AF_INET6 with SOCK_STREAM or
// SOCK_DGRAM are supported.
func NewSocket(family, sotype int) (*Socket, error) {
	if err := checkSocketKind(family, sotype); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, sotype, 0)
	if err != nil {
		return nil, err
	}

	s, err := newSocketFromFd(fd, family, sotype)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	Logger().Debug("socket created",
		zap.Int("fd", fd),
		zap.Int("family", family),
		zap.Int("type", sotype))

	return s, nil
}

// Listen creates a stream socket with SO_REUSEADDR, binds it to addr
// and starts listening. A backlog <= 0 means DefaultBacklog. A zero
// port picks an ephemeral one; LocalAddr reports it.
func Listen(addr netip.AddrPort, backlog int) (*Socket, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}


	s, err := NewSocket(familyOf(addr), unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}

	if err := s.SetsockoptInt(unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Bind(addr); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Listen(backlog); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func checkSocketKind(family, sotype int) error {
	switch family {
	case unix.AF_INET, unix.AF_INET6:
	default:
		return ErrUnsupportedSocket
	}
	switch sotype {
	case unix.SOCK_STREAM, unix.SOCK_DGRAM:
	default:
		return ErrUnsupportedSocket
	}
	return nil
}

func newSocketFromFd(fd, family, sotype int) (*Socket, error) {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &Socket{fd: fd, family: family, sotype: sotype}, nil
}

// Connect starts connecting to addr without blocking. The "in
// progress" outcome is expected and swallowed; Connect never checks
// later whether the connection succeeded. The first Recv or Send
// reports a failed connect, or the caller can read SO_ERROR through
// GetsockoptInt once the socket is writable.
func (s *Socket) Connect(addr netip.AddrPort) error {
	if s.closed {
		return ErrClosed
	}

	sa, err := toSockaddr(s.family, addr)
	if err != nil {
		return err
	}

	switch err := unix.Connect(s.fd, sa); err {
	case nil:
		return nil
	case unix.EINPROGRESS, unix.EAGAIN, unix.EINTR:
		Logger().Debug("connect in progress",
			zap.Int("fd", s.fd),
			zap.Stringer("addr", addr))
		return nil
	default:
		return err
	}
}

// Accept suspends t until a connection is pending, then accepts it
// without blocking. The returned Socket is independent of s.
func (s *Socket) Accept(t *Task) (*Socket, netip.AddrPort, error) {
	if s.closed {
		return nil, netip.AddrPort{}, ErrClosed
	}

	if err := WaitForRead(t, s); err != nil {
		return nil, netip.AddrPort{}, err
	}

	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		return nil, netip.AddrPort{}, err
	}

	conn, err := newSocketFromFd(nfd, s.family, s.sotype)
	if err != nil {
		unix.Close(nfd)
		return nil, netip.AddrPort{}, err
	}

	peer := fromSockaddr(sa)
	t.Logf("ACCEPT fd=%d peer=%v", nfd, peer)

	return conn, peer, nil
}

// Recv suspends t until s is readable and returns what one read
// yields, at most size bytes. An empty result with a nil error means
// the peer closed the connection.
func (s *Socket) Recv(t *Task, size int) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}

	if err := WaitForRead(t, s); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// Send suspends t until s is writable and makes one write. It returns
// the number of bytes the OS accepted, which may be less than
// len(data).
func (s *Socket) Send(t *Task, data []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}

	if err := WaitForWrite(t, s); err != nil {
		return 0, err
	}

	n, err := unix.Write(s.fd, data)
	if err != nil {
		return 0, err
	}

	return n, nil
}

// SendAll calls Send on the unsent remainder of data until all of it
// has been accepted. It has no retry limit: if s never becomes
// writable again, SendAll never returns.
func (s *Socket) SendAll(t *Task, data []byte) error {
	for len(data) > 0 {
		n, err := s.Send(t, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Fd returns the underlying descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// Family returns the socket's address family.
func (s *Socket) Family() int {
	return s.family
}

// Type returns the socket's type.
func (s *Socket) Type() int {
	return s.sotype
}

// Bind assigns addr to the socket.
func (s *Socket) Bind(addr netip.AddrPort) error {
	if s.closed {
		return ErrClosed
	}

	sa, err := toSockaddr(s.family, addr)
	if err != nil {
		return err
	}
	return unix.Bind(s.fd, sa)
}

// Listen marks the socket as accepting connections.
func (s *Socket) Listen(backlog int) error {
	if s.closed {
		return ErrClosed
	}
	return unix.Listen(s.fd, backlog)
}

// Shutdown disables reads, writes or both (unix.SHUT_RD, SHUT_WR,
// SHUT_RDWR).
func (s *Socket) Shutdown(how int) error {
	if s.closed {
		return ErrClosed
	}
	return unix.Shutdown(s.fd, how)
}

// SetsockoptInt sets an integer socket option.
func (s *Socket) SetsockoptInt(level, opt, value int) error {
	if s.closed {
		return ErrClosed
	}
	return unix.SetsockoptInt(s.fd, level, opt, value)
}

// GetsockoptInt reads an integer socket option.
func (s *Socket) GetsockoptInt(level, opt int) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return unix.GetsockoptInt(s.fd, level, opt)
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	if s.closed {
		return netip.AddrPort{}, ErrClosed
	}

	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa), nil
}

// PeerAddr returns the address of the connected peer.
func (s *Socket) PeerAddr() (netip.AddrPort, error) {
	if s.closed {
		return netip.AddrPort{}, ErrClosed
	}

	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa), nil
}

// Close releases the descriptor. Closing twice returns ErrClosed.
func (s *Socket) Close() error {
	if s.closed {
		return ErrClosed
	}

	s.closed = true
	fd := s.fd
	s.fd = -1

	Logger().Debug("socket closed", zap.Int("fd", fd))

	return unix.Close(fd)
}

func (s *Socket) String() string {
	if s.closed {
		return "socket(closed)"
	}
	return fmt.Sprintf("socket(fd=%d)", s.fd)
}
