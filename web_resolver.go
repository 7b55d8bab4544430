package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// DefaultWebServices answer a plain GET with the caller's IPv6 address.
// They only listen on IPv6, so an IPv4-only route fails instead of reporting an IPv4 address.
var DefaultWebServices = []string{
	"https://ipv6.icanhazip.com/",
	"https://api6.ipify.org/",
	"https://v6.ident.me/",
}

const (
	// webQueryCount is how many services one Resolve asks.
	webQueryCount    = 3
	webLookupTimeout = 15 * time.Second
)

// WebResolver returns a Resolver that asks external web services for the host's public IPv6 address.
//
// Each serviceURL must answer "200 OK" with the address as the first line of the body.
// Up to three distinct services are asked concurrently, starting at a random one.
// With a single service its answer is used as is; otherwise two services must agree.
// An agreed address that is not a global IPv6 address is reported as no address.
//
// Interfaces are never reported, so a selected interface has no effect.
func WebResolver(serviceURL ...string) (Resolver, error) {
	if len(serviceURL) == 0 {
		return nil, errors.New("no external IP lookup services were provided")
	}
	var urls []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("lookup service %q must be an http or https URL", u)
		}
		urls = append(urls, pu)
	}
	return &webResolver{serviceURLs: urls}, nil
}

type webResolver struct {
	httpClient  *http.Client
	serviceURLs []*url.URL
}

func (wr *webResolver) SetHTTPClient(hc *http.Client) { wr.httpClient = hc }

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context, _ string) (Observation, error) {
	addr, err := wr.agree(ctx)
	if err != nil {
		return Observation{}, err
	}
	if !IsGlobal(addr) {
		return Observation{}, nil
	}
	return Observation{Addr: addr}, nil
}

// pick returns the services to ask, rotating the starting point so one service doesn't take every request.
func (wr *webResolver) pick() []*url.URL {
	n := min(webQueryCount, len(wr.serviceURLs))
	start := rand.IntN(len(wr.serviceURLs))
	picked := make([]*url.URL, 0, n)
	for i := range n {
		picked = append(picked, wr.serviceURLs[(start+i)%len(wr.serviceURLs)])
	}
	return picked
}

// agree returns the first address reported by enough services.
// Outstanding requests are cancelled once it is known.
func (wr *webResolver) agree(ctx context.Context) (netip.Addr, error) {
	services := wr.pick()
	quorum := 2
	if len(services) == 1 {
		quorum = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		addr netip.Addr
		err  error
	}
	results := make(chan result, len(services))
	for _, u := range services {
		go func() {
			addr, err := wr.lookup(ctx, u)
			results <- result{addr, err}
		}()
	}

	votes := make(map[netip.Addr]int)
	var errs []error
	for range services {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		votes[r.addr]++
		if votes[r.addr] >= quorum {
			return r.addr, nil
		}
	}
	if answered := len(services) - len(errs); answered < quorum {
		return netip.Addr{}, fmt.Errorf("not enough IP lookup services responded without errors: %w", errors.Join(errs...))
	}
	return netip.Addr{}, errors.New("IP lookup services did not agree on our IP")
}

func (wr *webResolver) lookup(ctx context.Context, u *url.URL) (netip.Addr, error) {
	// a client without a timeout would otherwise wait as long as the caller's context
	ctx, cancel := context.WithTimeout(ctx, webLookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	hc := wr.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: http request failed: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("%s: http request returned %s", u.Host, resp.Status)
	}

	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	ip, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: error parsing IP address from response body: %w", u.Host, err)
	}
	return ip.WithZone(""), nil
}

// FallbackResolver uses primary and asks secondary only when primary finds no address.
// The interfaces reported by primary are kept either way.
func FallbackResolver(primary, secondary Resolver) Resolver {
	return &fallbackResolver{primary: primary, secondary: secondary, logger: discard}
}

type fallbackResolver struct {
	primary, secondary Resolver
	logger             *log.Logger
}

func (f *fallbackResolver) SetLogger(l *log.Logger) {
	f.logger = l
	for _, r := range []Resolver{f.primary, f.secondary} {
		if sl, ok := r.(interface{ SetLogger(*log.Logger) }); ok {
			sl.SetLogger(l)
		}
	}
}

func (f *fallbackResolver) SetHTTPClient(hc *http.Client) {
	for _, r := range []Resolver{f.primary, f.secondary} {
		if sh, ok := r.(interface{ SetHTTPClient(*http.Client) }); ok {
			sh.SetHTTPClient(hc)
		}
	}
}

// Resolve implements ddns.Resolver.
func (f *fallbackResolver) Resolve(ctx context.Context, selectedInterface string) (Observation, error) {
	obs, err := f.primary.Resolve(ctx, selectedInterface)
	if err != nil || obs.Addr.IsValid() {
		return obs, err
	}
	f.logger.Printf("ddns: no local address, asking IP lookup services")
	fb, err := f.secondary.Resolve(ctx, selectedInterface)
	if err != nil {
		return obs, fmt.Errorf("fallback lookup: %w", err)
	}
	obs.Addr = fb.Addr
	return obs, nil
}
