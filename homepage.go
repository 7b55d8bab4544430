package ddns

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultHomepagePort is advertised in homepage links when HomepageSettings.WebPort is not set.
const DefaultHomepagePort = 8080

const (
	portProbeTimeout = 250 * time.Millisecond
	portProbeLimit   = 8
)

// Service is a port on this host listed on the local homepage.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Port        uint16 `json:"port"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	// PresetType selects the share link scheme: SMB, HTTP, HTTPS, FTP, SSH or RDP.
	// Any other value yields a bare host:port link.
	PresetType string `json:"presetType,omitempty"`
}

type HomepageSettings struct {
	WebPort  uint16    `json:"webPort,omitempty"`
	Services []Service `json:"services,omitempty"`
}

// ServiceStatus is a Service with its share link and whether anything is listening on it.
type ServiceStatus struct {
	Service
	Online   bool   `json:"online"`
	ShareURL string `json:"shareUrl"`
}

// Homepage is what the local homepage shows. It carries no Cloudflare ids or token state.
type Homepage struct {
	PushDomain    string          `json:"pushDomain,omitempty"`
	PreferredHost string          `json:"preferredHost"`
	WebPort       uint16          `json:"webPort"`
	WebURL        string          `json:"webUrl"`
	Services      []ServiceStatus `json:"services"`
}

var shareSchemes = map[string]string{
	"SMB":   "smb",
	"HTTP":  "http",
	"HTTPS": "https",
	"FTP":   "ftp",
	"SSH":   "ssh",
	"RDP":   "rdp",
}

// ShareHost picks the host name others should use to reach this machine:
// the pushed domain, then the outbound IPv4 address, then the current IPv6 address, then loopback.
func ShareHost(domain string, outboundIPv4, currentIPv6 netip.Addr) string {
	if d := strings.TrimSpace(domain); d != "" {
		return d
	}
	if outboundIPv4.IsValid() {
		return outboundIPv4.String()
	}
	if currentIPv6.IsValid() {
		return currentIPv6.String()
	}
	return "127.0.0.1"
}

// ShareURL builds the link for s on host. IPv6 hosts are bracketed.
func ShareURL(s Service, host string) string {
	hostport := net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
	if scheme, ok := shareSchemes[strings.ToUpper(s.PresetType)]; ok {
		return scheme + "://" + hostport
	}
	return hostport
}

// PortOnline reports whether a TCP listener accepts connections on port over IPv4 or IPv6 loopback.
func PortOnline(ctx context.Context, port uint16) bool {
	d := net.Dialer{Timeout: portProbeTimeout}
	for _, host := range []string{"127.0.0.1", "::1"} {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// BuildHomepage describes the services configured in s.
// outboundIPv4 feeds ShareHost; online is asked about every service port concurrently.
func BuildHomepage(ctx context.Context, s Snapshot, outboundIPv4 netip.Addr, online func(context.Context, uint16) bool) Homepage {
	current, _ := netip.ParseAddr(s.CurrentIPv6)
	host := ShareHost(s.Settings.Cloudflare.Domain, outboundIPv4, current)
	port := s.Settings.Homepage.WebPort
	if port == 0 {
		port = DefaultHomepagePort
	}

	services := make([]ServiceStatus, len(s.Settings.Homepage.Services))
	var g errgroup.Group
	g.SetLimit(portProbeLimit)
	for i, svc := range s.Settings.Homepage.Services {
		services[i] = ServiceStatus{Service: svc, ShareURL: ShareURL(svc, host)}
		if online == nil {
			continue
		}
		g.Go(func() error {
			services[i].Online = online(ctx, svc.Port)
			return nil
		})
	}
	_ = g.Wait()

	return Homepage{
		PushDomain:    strings.TrimSpace(s.Settings.Cloudflare.Domain),
		PreferredHost: host,
		WebPort:       port,
		WebURL:        "http://" + net.JoinHostPort(host, strconv.Itoa(int(port))) + "/",
		Services:      services,
	}
}
