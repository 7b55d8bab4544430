package netwatch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/route"
	"golang.org/x/sys/unix"
)

func watch(ctx context.Context, notify func()) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("netwatch: open routing socket: %w", err)
	}
	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netwatch: set routing socket read timeout: %w", err)
	}

	go func() {
		defer unix.Close(fd)
		buf := make([]byte, 2048)
		for ctx.Err() == nil {
			n, err := unix.Read(fd, buf)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				return
			}
			if relevantRoute(buf[:n]) {
				notify()
			}
		}
	}()
	return nil
}

// relevantRoute reports whether a routing socket message describes an interface, address or route change.
// Messages the route package cannot parse fall back to the type byte of rt_msghdr.
func relevantRoute(b []byte) bool {
	msgs, err := route.ParseRIB(route.RIBTypeRoute, b)
	if err == nil && len(msgs) > 0 {
		for _, m := range msgs {
			switch m.(type) {
			case *route.InterfaceAddrMessage, *route.InterfaceMessage, *route.RouteMessage:
				return true
			}
		}
		return false
	}
	if len(b) < 4 {
		return false
	}
	switch b[3] {
	case unix.RTM_NEWADDR, unix.RTM_DELADDR, unix.RTM_IFINFO,
		unix.RTM_ADD, unix.RTM_DELETE, unix.RTM_CHANGE:
		return true
	}
	return false
}
