package ddns

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"slices"

	"github.com/Travis-Britz/ddns6/internal/stability"
)

// LocalResolver picks the address to publish from the host's own interfaces.
//
// The zero value is ready to use and reads the live interface table,
// the OS routing decision for outbound IPv6 traffic, and the platform's per-address stability metadata.
type LocalResolver struct {
	// Interfaces lists the host interfaces. Defaults to HostInterfaces.
	Interfaces func() ([]Interface, error)
	// Outbound reports the OS-preferred IPv6 source address. Defaults to OutboundIPv6.
	Outbound func() netip.Addr

	stability stability.Source
	logger    *log.Logger
}

func (r *LocalResolver) SetLogger(l *log.Logger) { r.logger = l }

// Resolve implements ddns.Resolver.
func (r *LocalResolver) Resolve(ctx context.Context, selectedInterface string) (Observation, error) {
	list := r.Interfaces
	if list == nil {
		list = HostInterfaces
	}
	ifaces, err := list()
	if err != nil {
		if len(ifaces) == 0 {
			return Observation{}, fmt.Errorf("error listing interfaces: %w", err)
		}
		r.logf("ignoring partial interface errors: %s", err)
	}
	slices.SortStableFunc(ifaces, func(a, b Interface) int { return cmp.Compare(a.Name, b.Name) })

	probe := r.Outbound
	if probe == nil {
		probe = OutboundIPv6
	}
	outbound := probe()

	src := r.stability
	if src == nil {
		src = stability.Platform()
	}
	ix := stability.Build(src, observed(ifaces))

	addr := SelectAddr(ifaces, selectedInterface, outbound, ix)
	r.logf("selected %s (outbound %s, %d interfaces)", addr, outbound, len(ifaces))
	return Observation{
		Interfaces: interfaceInfos(ifaces),
		Addr:       addr,
	}, nil
}

func (r *LocalResolver) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// HostInterfaces returns every interface on the host with its IPv6 networks.
// Interfaces whose addresses cannot be read are still returned, and the errors are joined.
func HostInterfaces() ([]Interface, error) {
	nifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("error getting interfaces: %w", err)
	}
	// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	var errs []error
	out := make([]Interface, 0, len(nifs))
	for _, nif := range nifs {
		iface := Interface{
			Name:          nif.Name,
			MAC:           nif.HardwareAddr,
			LinkSpeedMbps: linkSpeedMbps(nif.Name),
		}
		addrs, err := nif.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", nif.Name, err))
		}
		for _, a := range addrs {
			p, err := netip.ParsePrefix(a.String())
			if err != nil {
				errs = append(errs, fmt.Errorf("error parsing local ip %s for interface %s: %w", a.String(), nif.Name, err))
				continue
			}
			if !p.Addr().Is6() || p.Addr().Is4In6() {
				continue
			}
			iface.Prefixes = append(iface.Prefixes, p)
		}
		out = append(out, iface)
	}
	return out, errors.Join(errs...)
}

func interfaceInfos(ifaces []Interface) []InterfaceInfo {
	infos := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs := make([]string, 0, len(iface.Prefixes))
		for _, p := range iface.Prefixes {
			addrs = append(addrs, p.Addr().String())
		}
		slices.Sort(addrs)

		// net.Interfaces already reports the adapter's friendly name on Windows
		infos = append(infos, InterfaceInfo{
			ID:            iface.Name,
			Label:         iface.Name,
			MACAddress:    formatMAC(iface.MAC),
			IPv6Addresses: addrs,
			LinkSpeedMbps: iface.LinkSpeedMbps,
		})
	}
	return infos
}

// formatMAC returns "" for missing and all-zero hardware addresses.
func formatMAC(mac net.HardwareAddr) string {
	for _, b := range mac {
		if b != 0 {
			return mac.String()
		}
	}
	return ""
}
