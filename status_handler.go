package ddns

import (
	"context"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusHandlerOption configures NewStatusHandler.
type StatusHandlerOption func(*statusConfig)

type statusConfig struct {
	middlewares  []func(http.Handler) http.Handler
	outboundIPv4 func() netip.Addr
	portOnline   func(context.Context, uint16) bool
	webPort      uint16
}

// WithMiddlewares adds middleware to the status handler.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) StatusHandlerOption {
	return func(cfg *statusConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHomepagePort advertises port in homepage links instead of HomepageSettings.WebPort,
// e.g. when the server listens somewhere else.
func WithHomepagePort(port uint16) StatusHandlerOption {
	return func(cfg *statusConfig) {
		cfg.webPort = port
	}
}

// WithHomepageProbes replaces OutboundIPv4 and PortOnline for the homepage.
func WithHomepageProbes(outboundIPv4 func() netip.Addr, portOnline func(context.Context, uint16) bool) StatusHandlerOption {
	return func(cfg *statusConfig) {
		if outboundIPv4 != nil {
			cfg.outboundIPv4 = outboundIPv4
		}
		if portOnline != nil {
			cfg.portOnline = portOnline
		}
	}
}

// NewStatusHandler serves a read-only view of the controller:
//
//	GET /                        the local homepage
//	GET /api/homepage/snapshot   the local homepage as JSON
//	GET /api/snapshot            the current Snapshot as JSON, to loopback clients only
//	GET /healthz                 200 "ok"
func NewStatusHandler(src interface{ Snapshot() Snapshot }, opts ...StatusHandlerOption) http.Handler {
	cfg := &statusConfig{
		outboundIPv4: OutboundIPv4,
		portOnline:   PortOnline,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	homepage := func(r *http.Request) Homepage {
		snap := src.Snapshot()
		if cfg.webPort != 0 {
			snap.Settings.Homepage.WebPort = cfg.webPort
		}
		return BuildHomepage(r.Context(), snap, cfg.outboundIPv4(), cfg.portOnline)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = homepageTemplate.Execute(w, homepage(r))
	})
	r.Get("/api/homepage/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, homepage(r))
	})
	r.With(loopbackOnly).Get("/api/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, src.Snapshot())
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

// loopbackOnly rejects requests that did not come from this host.
// The full snapshot includes zone and record ids, which the homepage leaves out.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr, err := netip.ParseAddr(host)
		if err != nil || !addr.Unmap().IsLoopback() {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Share links use schemes such as smb:// and ssh:// that html/template would otherwise blank out.
var homepageTemplate = template.Must(template.New("homepage").Funcs(template.FuncMap{
	"shareLink": func(s string) template.URL { return template.URL(s) },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.PreferredHost}}</title></head>
<body style="font-family:sans-serif;padding:24px">
<h2>{{.PreferredHost}}</h2>
{{if .Services}}<ul>
{{range .Services}}<li>{{if .Online}}&#9679;{{else}}&#9675;{{end}} <strong>{{.Name}}</strong> <a href="{{shareLink .ShareURL}}">{{.ShareURL}}</a>{{with .Description}} &middot; {{.}}{{end}}</li>
{{end}}</ul>{{else}}<p>No services are configured.</p>{{end}}
</body></html>
`))
