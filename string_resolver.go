package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always reports the fixed IPv6 address addr.
//
// It is mostly useful for testing or for hosts whose address is assigned out of band.
func FromString(addr string) (Resolver, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	if !a.Is6() || a.Is4In6() {
		return nil, fmt.Errorf("%s is not an IPv6 address", addr)
	}
	return stringResolver(a.WithZone("").String()), nil
}

type stringResolver string

// Resolve implements ddns.Resolver. The selected interface is ignored.
func (s stringResolver) Resolve(context.Context, string) (Observation, error) {
	addr, err := netip.ParseAddr(string(s))
	if err != nil {
		return Observation{}, fmt.Errorf("unable to parse IP: %w", err)
	}
	return Observation{Addr: addr}, nil
}
