// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

//go:build !windows

package tarpit

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// listen creates the socket by hand so the backlog reaches listen(2) as
// configured. net.Listen always uses the kernel maximum.
func listen(address string, backlog int, logger *log.Logger) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	family, sa, err := sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener dups the descriptor, so our copy is always closed.
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%s", address))
	defer f.Close()
	return net.FileListener(f)
}

// sockaddr converts a resolved address for bind(2). A blank host binds all
// IPv4 interfaces. An IPv6 zone may be an interface name or index.
func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); addr.IP == nil || ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		return unix.AF_INET, sa4, nil
	}

	sa6 := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa6.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa6.ZoneId = uint32(ifi.Index)
		} else if idx, perr := strconv.Atoi(addr.Zone); perr == nil && idx > 0 {
			sa6.ZoneId = uint32(idx)
		} else {
			return 0, nil, fmt.Errorf("unknown IPv6 zone %q: %w", addr.Zone, err)
		}
	}
	return unix.AF_INET6, sa6, nil
}
