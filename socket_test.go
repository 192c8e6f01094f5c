//go:build unix

package corosock

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var loopback = netip.MustParseAddrPort("127.0.0.1:0")

func socketPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	a, err := newSocketFromFd(fds[0], unix.AF_UNIX, unix.SOCK_STREAM)
	require.NoError(t, err)
	b, err := newSocketFromFd(fds[1], unix.AF_UNIX, unix.SOCK_STREAM)
	require.NoError(t, err)

	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func isNonblocking(t *testing.T, s *Socket) bool {
	t.Helper()

	flags, err := unix.FcntlInt(uintptr(s.Fd()), unix.F_GETFL, 0)
	require.NoError(t, err)
	return flags&unix.O_NONBLOCK != 0
}

func TestEcho(t *testing.T) {
	r := require.New(t)

	ln, err := Listen(loopback, 0)
	r.NoError(err)
	defer ln.Close()

	addr, err := ln.LocalAddr()
	r.NoError(err)
	r.NotZero(addr.Port())

	var got []byte
	var server, client *Task
	var accepted *Socket

	s := New()
	root := s.Run(context.Background(), func(_ context.Context, task *Task) error {
		server = task.Spawn(func(_ context.Context, task *Task) error {
			conn, peer, err := ln.Accept(task)
			if err != nil {
				return err
			}
			defer conn.Close()
			accepted = conn
			r.True(peer.Addr().IsLoopback())

			data, err := conn.Recv(task, 1024)
			if err != nil {
				return err
			}
			return conn.SendAll(task, data)
		})

		client = task.Spawn(func(_ context.Context, task *Task) error {
			sock, err := NewSocket(unix.AF_INET, unix.SOCK_STREAM)
			if err != nil {
				return err
			}
			defer sock.Close()

			if err := sock.Connect(addr); err != nil {
				return err
			}
			if err := sock.SendAll(task, []byte("ping")); err != nil {
				return err
			}
			for len(got) < 4 {
				data, err := sock.Recv(task, 1024)
				if err != nil {
					return err
				}
				if len(data) == 0 {
					break
				}
				got = append(got, data...)
			}
			return nil
		})
		return nil
	})

	r.NoError(root.Err())
	r.NoError(server.Err())
	r.NoError(client.Err())
	r.Equal(StateDone, server.State())
	r.Equal(StateDone, client.State())
	r.Equal([]byte("ping"), got)
	r.Equal(0, s.Len())
	r.Zero(s.Stats().Failed)
	r.NotNil(accepted)
	r.Equal(ErrClosed, accepted.Close())
}

func TestListenBacklog(t *testing.T) {
	r := require.New(t)

	ln, err := Listen(loopback, 4)
	r.NoError(err)
	defer ln.Close()

	addr, err := ln.LocalAddr()
	r.NoError(err)
	r.NotZero(addr.Port())

	reuse, err := ln.GetsockoptInt(unix.SOL_SOCKET, unix.SO_REUSEADDR)
	r.NoError(err)
	r.NotZero(reuse)

	accepting, err := ln.GetsockoptInt(unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err == nil {
		r.NotZero(accepting)
	}

	_, err = Listen(netip.AddrPort{}, 4)
	r.Error(err)
}

func TestAcceptedSocketIsNonblocking(t *testing.T) {
	r := require.New(t)

	ln, err := Listen(loopback, 0)
	r.NoError(err)
	defer ln.Close()
	r.True(isNonblocking(t, ln))

	addr, err := ln.LocalAddr()
	r.NoError(err)

	New().Run(context.Background(), func(_ context.Context, task *Task) error {
		task.Spawn(func(_ context.Context, task *Task) error {
			sock, err := NewSocket(unix.AF_INET, unix.SOCK_STREAM)
			r.NoError(err)
			defer sock.Close()
			r.True(isNonblocking(t, sock))
			r.NoError(sock.Connect(addr))
			return WaitForWrite(task, sock)
		})

		conn, _, err := ln.Accept(task)
		r.NoError(err)
		defer conn.Close()
		r.True(isNonblocking(t, conn))
		r.Equal(unix.AF_INET, conn.Family())
		r.Equal(unix.SOCK_STREAM, conn.Type())

		local, err := conn.LocalAddr()
		r.NoError(err)
		r.Equal(addr, local)
		return nil
	})
}

func TestRecvReturnsAvailableBytes(t *testing.T) {
	r := require.New(t)

	a, b := socketPair(t)
	_, err := unix.Write(b.Fd(), []byte("abc"))
	r.NoError(err)

	s := New()
	var data []byte
	task := s.Run(context.Background(), func(_ context.Context, task *Task) error {
		data, err = a.Recv(task, 10)
		return err
	})

	r.NoError(task.Err())
	r.Equal([]byte("abc"), data)
	r.Equal(uint64(1), s.Stats().Resumptions)
}

func TestRecvSuspendsUntilReadable(t *testing.T) {
	r := require.New(t)

	a, b := socketPair(t)

	var trace []string
	s := New()
	s.Run(context.Background(), func(_ context.Context, task *Task) error {
		task.Spawn(func(_ context.Context, task *Task) error {
			data, err := a.Recv(task, 10)
			r.NoError(err)
			trace = append(trace, "recv "+string(data))
			return nil
		})

		for i := 0; i < 3; i++ {
			trace = append(trace, "tick")
			task.Yield()
		}

		n, err := b.Send(task, []byte("late"))
		r.NoError(err)
		r.Equal(4, n)
		trace = append(trace, "sent")
		return nil
	})

	r.Equal([]string{"tick", "tick", "tick", "sent", "recv late"}, trace)
	r.Greater(s.Stats().Resumptions, uint64(5))
}

func TestCloseWakesSuspendedRecv(t *testing.T) {
	r := require.New(t)

	a, _ := socketPair(t)

	var reader *Task
	s := New()
	root := s.Run(context.Background(), func(_ context.Context, task *Task) error {
		reader = task.Spawn(func(_ context.Context, task *Task) error {
			_, err := a.Recv(task, 10)
			return err
		})
		r.Equal(StateSuspended, reader.State())
		return a.Close()
	})

	r.NoError(root.Err())
	r.Equal(StateFailed, reader.State())
	r.ErrorIs(reader.Err(), ErrClosed)
	r.Equal(0, s.Len())
	r.Equal(uint64(1), s.Stats().Failed)
}

func TestRecvPeerClosed(t *testing.T) {
	r := require.New(t)

	a, b := socketPair(t)
	r.NoError(b.Close())

	New().Run(context.Background(), func(_ context.Context, task *Task) error {
		data, err := a.Recv(task, 10)
		r.NoError(err)
		r.Empty(data)
		return nil
	})
}

func TestSendAllSingleWrite(t *testing.T) {
	r := require.New(t)

	a, b := socketPair(t)

	s := New()
	payload := []byte("hello, world")
	task := s.Run(context.Background(), func(_ context.Context, task *Task) error {
		n, err := a.Send(task, payload)
		r.NoError(err)
		r.Equal(len(payload), n)
		return a.SendAll(task, payload)
	})

	r.NoError(task.Err())
	r.Equal(uint64(1), s.Stats().Resumptions)

	buf := make([]byte, 64)
	n, err := unix.Read(b.Fd(), buf)
	r.NoError(err)
	r.Equal(append(append([]byte{}, payload...), payload...), buf[:n])
}

func TestSendAllLargePayload(t *testing.T) {
	r := require.New(t)

	a, b := socketPair(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1<<16)

	var got []byte
	s := New()
	s.Run(context.Background(), func(_ context.Context, task *Task) error {
		task.Spawn(func(_ context.Context, task *Task) error {
			r.NoError(a.SendAll(task, payload))
			return a.Shutdown(unix.SHUT_WR)
		})

		for {
			data, err := b.Recv(task, 4096)
			r.NoError(err)
			if len(data) == 0 {
				return nil
			}
			got = append(got, data...)
		}
	})

	r.Equal(payload, got)
	r.Zero(s.Stats().Failed)
}

func TestSendAllEmpty(t *testing.T) {
	r := require.New(t)

	a, _ := socketPair(t)
	task := New().Run(context.Background(), func(_ context.Context, task *Task) error {
		return a.SendAll(task, nil)
	})
	r.NoError(task.Err())
}

func TestConnectRefused(t *testing.T) {
	r := require.New(t)

	ln, err := Listen(loopback, 0)
	r.NoError(err)
	addr, err := ln.LocalAddr()
	r.NoError(err)
	r.NoError(ln.Close())

	task := New().Run(context.Background(), func(_ context.Context, task *Task) error {
		sock, err := NewSocket(unix.AF_INET, unix.SOCK_STREAM)
		if err != nil {
			return err
		}
		defer sock.Close()

		if err := sock.Connect(addr); err != nil {
			return err
		}
		_, err = sock.Recv(task, 16)
		return err
	})

	r.Equal(StateFailed, task.State())
	r.True(errors.Is(task.Err(), unix.ECONNREFUSED) || errors.Is(task.Err(), unix.ECONNRESET),
		"unexpected error %v", task.Err())
}

func TestNewSocketHonoursFamilyAndType(t *testing.T) {
	r := require.New(t)

	udp, err := NewSocket(unix.AF_INET, unix.SOCK_DGRAM)
	r.NoError(err)
	defer udp.Close()
	r.Equal(unix.SOCK_DGRAM, udp.Type())
	sotype, err := udp.GetsockoptInt(unix.SOL_SOCKET, unix.SO_TYPE)
	r.NoError(err)
	r.Equal(unix.SOCK_DGRAM, sotype)
	r.True(isNonblocking(t, udp))

	v6, err := NewSocket(unix.AF_INET6, unix.SOCK_STREAM)
	if err != nil {
		t.Skipf("no IPv6 support: %v", err)
	}
	defer v6.Close()
	r.Equal(unix.AF_INET6, v6.Family())
}

func TestNewSocketUnsupported(t *testing.T) {
	r := require.New(t)

	_, err := NewSocket(unix.AF_UNIX, unix.SOCK_STREAM)
	r.ErrorIs(err, ErrUnsupportedSocket)

	_, err = NewSocket(unix.AF_INET, unix.SOCK_RAW)
	r.ErrorIs(err, ErrUnsupportedSocket)
}

func TestDatagramRoundTrip(t *testing.T) {
	r := require.New(t)

	a, err := NewSocket(unix.AF_INET, unix.SOCK_DGRAM)
	r.NoError(err)
	defer a.Close()
	r.NoError(a.Bind(loopback))
	aAddr, err := a.LocalAddr()
	r.NoError(err)

	b, err := NewSocket(unix.AF_INET, unix.SOCK_DGRAM)
	r.NoError(err)
	defer b.Close()
	r.NoError(b.Bind(loopback))
	bAddr, err := b.LocalAddr()
	r.NoError(err)

	r.NoError(a.Connect(bAddr))
	r.NoError(b.Connect(aAddr))

	peer, err := a.PeerAddr()
	r.NoError(err)
	r.Equal(bAddr, peer)

	task := New().Run(context.Background(), func(_ context.Context, task *Task) error {
		task.Spawn(func(_ context.Context, task *Task) error {
			return a.SendAll(task, []byte("datagram"))
		})
		data, err := b.Recv(task, 64)
		r.NoError(err)
		r.Equal([]byte("datagram"), data)
		return nil
	})
	r.NoError(task.Err())
}

func TestClosedSocket(t *testing.T) {
	r := require.New(t)

	sock, err := NewSocket(unix.AF_INET, unix.SOCK_STREAM)
	r.NoError(err)
	r.Contains(sock.String(), "fd=")
	r.NoError(sock.Close())

	r.ErrorIs(sock.Close(), ErrClosed)
	r.ErrorIs(sock.Connect(loopback), ErrClosed)
	r.ErrorIs(sock.Bind(loopback), ErrClosed)
	r.ErrorIs(sock.Listen(1), ErrClosed)
	r.ErrorIs(sock.Shutdown(unix.SHUT_RDWR), ErrClosed)
	r.ErrorIs(sock.SetsockoptInt(unix.SOL_SOCKET, unix.SO_REUSEADDR, 1), ErrClosed)
	_, err = sock.LocalAddr()
	r.ErrorIs(err, ErrClosed)
	_, err = sock.PeerAddr()
	r.ErrorIs(err, ErrClosed)
	r.Equal("socket(closed)", sock.String())
	r.Equal(-1, sock.Fd())

	New().Run(context.Background(), func(_ context.Context, task *Task) error {
		_, err := sock.Recv(task, 1)
		r.ErrorIs(err, ErrClosed)
		_, err = sock.Send(task, []byte("x"))
		r.ErrorIs(err, ErrClosed)
		r.ErrorIs(sock.SendAll(task, []byte("x")), ErrClosed)
		_, _, err = sock.Accept(task)
		r.ErrorIs(err, ErrClosed)
		return nil
	})
}
