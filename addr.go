//go:build unix

package corosock

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// familyOf returns the address family matching addr.
func familyOf(addr netip.AddrPort) int {
	if addr.Addr().Unmap().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

// toSockaddr converts addr for a socket of the given family. An IPv4
// address on an AF_INET6 socket is passed in its v4-mapped form. An
// IPv6 zone must name a local interface; it becomes the scope id.
func toSockaddr(family int, addr netip.AddrPort) (unix.Sockaddr, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("corosock: invalid address %v", addr)
	}

	ip := addr.Addr()
	switch family {
	case unix.AF_INET:
		ip = ip.Unmap()
		if !ip.Is4() {
			return nil, fmt.Errorf("corosock: %v is not an IPv4 address", ip)
		}
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}, nil
	case unix.AF_INET6:
		zone, err := zoneIndex(ip.Zone())
		if err != nil {
			return nil, err
		}
		return &unix.SockaddrInet6{Port: int(addr.Port()), ZoneId: zone, Addr: ip.As16()}, nil
	default:
		return nil, ErrUnsupportedSocket
	}
}

// fromSockaddr converts an IP socket address; anything else yields
// the zero AddrPort.
func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(sa.Addr)
		if name := zoneName(sa.ZoneId); name != "" {
			ip = ip.WithZone(name)
		}
		return netip.AddrPortFrom(ip, uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

func zoneIndex(zone string) (uint32, error) {
	if zone == "" {
		return 0, nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err == nil {
		return uint32(ifi.Index), nil
	}
	if n, perr := strconv.ParseUint(zone, 10, 32); perr == nil {
		return uint32(n), nil
	}
	return 0, fmt.Errorf("corosock: unknown zone %q: %w", zone, err)
}

// zoneName falls back to the decimal index when the interface is gone,
// which netip accepts as a zone too.
func zoneName(id uint32) string {
	if id == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(int(id)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(id), 10)
}
