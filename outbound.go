package ddns

import (
	"net"
	"net/netip"
)

// Public anycast resolvers used only as routing targets. Nothing is sent to them.
const (
	outboundTargetIPv6 = "[2606:4700:4700::1111]:53"
	outboundTargetIPv4 = "1.1.1.1:53"
)

// OutboundIPv6 returns the local address the OS would use as the source for IPv6 traffic to the internet.
//
// Connecting a UDP socket only asks the routing table for a route and binds a source address;
// no packet leaves the host.
// The zero Addr is returned when there is no route.
func OutboundIPv6() netip.Addr {
	return outboundAddr("udp6", outboundTargetIPv6)
}

// OutboundIPv4 is the IPv4 counterpart of OutboundIPv6.
func OutboundIPv4() netip.Addr {
	return outboundAddr("udp4", outboundTargetIPv4)
}

func outboundAddr(network, target string) netip.Addr {
	conn, err := net.Dial(network, target)
	if err != nil {
		return netip.Addr{}
	}
	defer conn.Close()
	return boundAddr(network, conn.LocalAddr())
}

// boundAddr extracts the source address of a connected socket,
// rejecting anything that does not belong to network's address family.
func boundAddr(network string, local net.Addr) netip.Addr {
	udp, ok := local.(*net.UDPAddr)
	if !ok {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(udp.IP)
	if !ok {
		return netip.Addr{}
	}
	addr = addr.WithZone("")
	if network == "udp4" {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}
		}
		return addr
	}
	if !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}
	}
	return addr
}
