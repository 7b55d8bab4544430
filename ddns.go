package ddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Travis-Britz/ddns6/internal/netwatch"
)

var discard = log.New(io.Discard, "", log.LstdFlags)

var (
	ErrRecordNotFound = errors.New("no AAAA record found")
	ErrNotConfigured  = errors.New("Cloudflare zone id and domain must be set before pushing updates")
	ErrNoToken        = errors.New("API token is not set")
	ErrNoAddress      = errors.New("no eligible global IPv6 address is currently available")
)

// minPollInterval keeps the fallback poll from hammering the host.
const minPollInterval = 1 * time.Minute

// New constructs a Controller whose settings and cache are loaded from store.
//
// A Provider is required; use ddns.UsingCloudflare or ddns.UsingProvider.
// The default resolver is a LocalResolver.
func New(store Store, options ...clientOption) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("ddns.New: store cannot be nil")
	}
	c := &Controller{
		store:    store,
		resolver: &LocalResolver{},
		now:      time.Now,
		watch:    netwatch.Watch,
		wake:     NewWake(),
		pushLock: semaphore.NewWeighted(1),
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.provider == nil {
		return nil, fmt.Errorf("ddns.New: no DNS provider was registered and there is no default option - use ddns.UsingCloudflare or similar")
	}

	cfg, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("ddns.New: error loading config: %w", err)
	}
	if cfg.Cache.LastSyncStatus.Kind == "" {
		cfg.Cache.LastSyncStatus.Kind = SyncIdle
	}
	c.cfg = cfg

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

type clientOption func(*Controller) error

// UsingCloudflare registers the Cloudflare API as the DNS provider.
func UsingCloudflare(options ...cloudflareOption) clientOption {
	return func(c *Controller) error {
		c.provider = NewCloudflare(options...)
		return nil
	}
}

// UsingProvider registers any Provider implementation.
func UsingProvider(p Provider) clientOption {
	return func(c *Controller) error {
		if p == nil {
			return errors.New("provider cannot be nil")
		}
		c.provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) clientOption {
	return func(c *Controller) error {
		if resolver == nil {
			resolver = &LocalResolver{}
		}
		c.resolver = resolver
		return nil
	}
}

// UsingTokenStore sets where the provider API token is read from.
// Without one every push fails with ErrNoToken.
func UsingTokenStore(ts TokenStore) clientOption {
	return func(c *Controller) error {
		c.tokens = ts
		return nil
	}
}

// UsingWatcher replaces the OS network-change subscription.
// watch must call notify for every change and stop when ctx is done.
func UsingWatcher(watch func(ctx context.Context, notify func()) error) clientOption {
	return func(c *Controller) error {
		c.watch = watch
		return nil
	}
}

// WithPollInterval wakes the controller on a fixed interval in addition to OS notifications.
// Intervals below one minute are raised to one minute. Zero disables polling.
func WithPollInterval(interval time.Duration) clientOption {
	return func(c *Controller) error {
		if interval > 0 && interval < minPollInterval {
			interval = minPollInterval
		}
		c.pollInterval = interval
		return nil
	}
}

// WithSnapshotHook is called after every detection cycle, manual action and settings change.
func WithSnapshotHook(fn func(Snapshot)) clientOption {
	return func(c *Controller) error {
		c.onSnapshot = fn
		return nil
	}
}

// WithNetworkChangedHook is called when a detection pass observes different interfaces or a different address
// than the pass before it, whether or not anything is pushed.
func WithNetworkChangedHook(fn func()) clientOption {
	return func(c *Controller) error {
		c.onNetworkChanged = fn
		return nil
	}
}

// WithClock overrides the time source used for cache timestamps.
func WithClock(now func() time.Time) clientOption {
	return func(c *Controller) error {
		if now == nil {
			now = time.Now
		}
		c.now = now
		return nil
	}
}

func withLogger(logger *log.Logger) clientOption {
	return func(c *Controller) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(*log.Logger)
		}

		switch p := c.provider.(type) {
		case *cloudflareProvider:
			p.logger = logger
		case setLogger:
			p.SetLogger(logger)
		}

		if r, ok := c.resolver.(setLogger); ok {
			r.SetLogger(logger)
		}

		return nil
	}
}

func WithLogger(logger *log.Logger) clientOption {
	return func(c *Controller) error {
		c.logger = logger
		return nil
	}
}

func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *Controller) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if hc, ok := c.resolver.(setHTTPClient); ok {
			hc.SetHTTPClient(httpclient)
		}
		switch p := c.provider.(type) {
		case *cloudflareProvider:
			p.httpClient = httpclient
		case setHTTPClient:
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// Controller keeps one AAAA record in sync with the host's best IPv6 address.
//
// All pushes and record lookups are serialized by a single lock,
// so concurrent triggers wait for the one in flight instead of racing it.
type Controller struct {
	resolver Resolver
	provider Provider
	store    Store
	tokens   TokenStore
	logger   *log.Logger
	now      func() time.Time
	watch    func(ctx context.Context, notify func()) error

	pollInterval     time.Duration
	onSnapshot       func(Snapshot)
	onNetworkChanged func()

	wake         *Wake
	pushLock     *semaphore.Weighted
	shuttingDown atomic.Bool

	mu         sync.Mutex // guards the fields below; never held across provider calls
	cfg        Config
	interfaces []InterfaceInfo
	current    netip.Addr
}

// Run performs one forced detection cycle and then one more per coalesced wake,
// until ctx is done or Shutdown is called.
//
// A cycle that has started always runs to completion; cancellation is only observed between cycles.
// Run returns ctx.Err() when ctx ends the loop and nil after Shutdown.
func (c *Controller) Run(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	poll := c.pollInterval
	if err := c.watch(watchCtx, c.Wake); err != nil {
		c.logger.Printf("ddns: network change notifications unavailable: %s", err)
		if poll == 0 {
			poll = 5 * time.Minute
		}
	}
	if poll > 0 {
		go c.poll(watchCtx, poll)
	}

	c.cycle(ctx)
	for {
		if c.shuttingDown.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake.C():
		}
		if c.shuttingDown.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cycle(ctx)
	}
}

func (c *Controller) cycle(ctx context.Context) {
	if err := c.detect(context.WithoutCancel(ctx)); err != nil {
		c.logger.Printf("ddns: detection cycle: %s", err)
	}
}

func (c *Controller) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Wake()
		}
	}
}

// Wake schedules a detection cycle. Calls made while one is pending collapse into it.
func (c *Controller) Wake() {
	c.wake.Notify()
}

// Shutdown makes Run return after the cycle in progress, if any.
func (c *Controller) Shutdown() {
	c.shuttingDown.Store(true)
	c.wake.Notify()
}
