package ddns

import (
	"bytes"
	"cmp"
	"net"
	"net/netip"
	"slices"

	"github.com/Travis-Britz/ddns6/internal/stability"
)

// Interface is one network interface as seen by address selection.
type Interface struct {
	Name          string
	MAC           net.HardwareAddr
	Prefixes      []netip.Prefix
	LinkSpeedMbps *uint64
}

type candidate struct {
	addr     netip.Addr
	rank     stability.Rank
	outbound bool
}

// SelectAddr picks the address to publish from ifaces.
//
// If selected is not empty only that interface is considered, and a missing interface yields no address.
// Candidates are global IPv6 addresses ordered by stability rank,
// then by whether they match outbound (the address the OS routes public traffic from),
// then by byte order.
// The zero Addr is returned when there is no candidate.
func SelectAddr(ifaces []Interface, selected string, outbound netip.Addr, ix stability.Index) netip.Addr {
	if ix == nil {
		ix = make(stability.Index)
	}
	universe := ifaces
	if selected != "" {
		universe = nil
		for _, iface := range ifaces {
			if iface.Name == selected {
				universe = []Interface{iface}
				break
			}
		}
	}

	var candidates []candidate
	for _, iface := range universe {
		for _, p := range iface.Prefixes {
			addr := p.Addr().WithZone("")
			if !IsGlobal(addr) {
				continue
			}
			candidates = append(candidates, candidate{
				addr:     addr,
				rank:     ix.RankFor(iface.Name, addr, p.Bits()),
				outbound: outbound.IsValid() && addr == outbound.WithZone(""),
			})
		}
	}
	if len(candidates) == 0 {
		return netip.Addr{}
	}
	slices.SortStableFunc(candidates, compareCandidates)
	return candidates[0].addr
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.rank, b.rank); c != 0 {
		return c
	}
	if a.outbound != b.outbound {
		if a.outbound {
			return -1
		}
		return 1
	}
	x, y := a.addr.As16(), b.addr.As16()
	return bytes.Compare(x[:], y[:])
}

// IsGlobal reports whether addr is an IPv6 address usable on the internet:
// not loopback, multicast, link-local, unique-local (fc00::/7) or unspecified.
// IPv4 and IPv4-mapped addresses are never global IPv6 candidates.
func IsGlobal(addr netip.Addr) bool {
	if !addr.Is6() || addr.Is4In6() {
		return false
	}
	return !addr.IsLoopback() &&
		!addr.IsMulticast() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsUnspecified()
}

func observed(ifaces []Interface) []stability.Observed {
	var out []stability.Observed
	for _, iface := range ifaces {
		for _, p := range iface.Prefixes {
			if !p.Addr().Is6() || p.Addr().Is4In6() {
				continue
			}
			out = append(out, stability.Observed{Interface: iface.Name, Prefix: netip.PrefixFrom(p.Addr().WithZone(""), p.Bits())})
		}
	}
	return out
}
