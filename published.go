package ddns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/miekg/dns"
)

// DefaultLookupServer is the recursive resolver LookupPublished asks when no server is given.
const DefaultLookupServer = "1.1.1.1:53"

// LookupPublished asks a DNS server for the AAAA records currently published for domain.
//
// The answer reflects resolver caching, so it can lag a successful update by up to the record's TTL.
// An empty result with a nil error means the name has no AAAA records.
func LookupPublished(ctx context.Context, domain, server string) ([]netip.Addr, error) {
	if server == "" {
		server = DefaultLookupServer
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeAAAA)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: 5 * time.Second}
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("error querying %s for %s: %w", server, domain, err)
	}
	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("query for %s returned %s", domain, dns.RcodeToString[r.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range r.Answer {
		aaaa, ok := rr.(*dns.AAAA)
		if !ok {
			continue
		}
		a, ok := netip.AddrFromSlice(aaaa.AAAA)
		if !ok {
			continue
		}
		addrs = append(addrs, a)
	}
	slices.SortFunc(addrs, netip.Addr.Compare)
	return addrs, nil
}
