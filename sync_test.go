package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	cfg   Config
	saves int
	err   error
}

func (m *memStore) Load() (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.clone(), nil
}

func (m *memStore) Save(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.cfg = cfg.clone()
	m.saves++
	return nil
}

func (m *memStore) saved() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.clone()
}

type fakeProvider struct {
	mu          sync.Mutex
	recordID    string
	findErr     error
	updateErr   error
	finds       int
	updates     []netip.Addr
	ttls        []int
	inFlight    int
	maxInFlight int

	entered  chan struct{} // receives once per UpdateRecord call when not nil
	release  chan struct{} // UpdateRecord waits for it when not nil
	onFind   func()
	onUpdate func()
}

func (p *fakeProvider) FindRecordID(_ context.Context, zoneID, domain, token string) (string, error) {
	if p.onFind != nil {
		p.onFind()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finds++
	if p.findErr != nil {
		return "", p.findErr
	}
	return p.recordID, nil
}

func (p *fakeProvider) UpdateRecord(_ context.Context, zoneID, recordID, token string, addr netip.Addr, ttl int) error {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate()
	}
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, addr)
	p.ttls = append(p.ttls, ttl)
	return nil
}

func (p *fakeProvider) stats() (finds int, updates []netip.Addr, maxInFlight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finds, append([]netip.Addr(nil), p.updates...), p.maxInFlight
}

type staticToken string

func (s staticToken) Token() (string, bool, error) { return string(s), s != "", nil }

// fakeResolver returns whatever was last set, counting calls.
type fakeResolver struct {
	mu    sync.Mutex
	obs   Observation
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string) (Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.obs, r.err
}

func (r *fakeResolver) set(addr string, ifaces ...InterfaceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = Observation{Interfaces: ifaces}
	if addr != "" {
		r.obs.Addr = netip.MustParseAddr(addr)
	}
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func configuredStore() *memStore {
	cfg := DefaultConfig()
	cfg.Settings.Cloudflare = CloudflareSettings{ZoneID: "zone1", Domain: "home.example.com"}
	return &memStore{cfg: cfg}
}

func newTestController(t *testing.T, store *memStore, p *fakeProvider, r Resolver, opts ...clientOption) *Controller {
	t.Helper()
	opts = append([]clientOption{
		UsingProvider(p),
		UsingResolver(r),
		UsingTokenStore(staticToken("secret")),
		WithClock(func() time.Time { return testNow }),
		UsingWatcher(func(context.Context, func()) error { return nil }),
	}, opts...)
	c, err := New(store, opts...)
	require.NoError(t, err)
	return c
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(&memStore{cfg: DefaultConfig()})
	require.Error(t, err)

	_, err = New(nil, UsingProvider(&fakeProvider{}))
	require.Error(t, err)
}

func TestNewDefaultsIdleStatus(t *testing.T) {
	c := newTestController(t, &memStore{}, &fakeProvider{}, &fakeResolver{})
	assert.Equal(t, SyncIdle, c.Snapshot().Cache.LastSyncStatus.Kind)
}

func TestDetectPushesOnlyOnChange(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	c := newTestController(t, store, p, r)
	ctx := context.Background()

	r.set("2001:db8::1")
	require.NoError(t, c.detect(ctx))
	require.NoError(t, c.detect(ctx))

	_, updates, _ := p.stats()
	require.Equal(t, []netip.Addr{netip.MustParseAddr("2001:db8::1")}, updates)

	saved := store.saved()
	assert.Equal(t, "2001:db8::1", saved.Cache.LastKnownIPv6)
	require.NotNil(t, saved.Cache.LastIPv6ChangeTime)
	assert.Equal(t, testNow, *saved.Cache.LastIPv6ChangeTime)
	assert.Equal(t, SyncSuccess, saved.Cache.LastSyncStatus.Kind)
	assert.Equal(t, "Updated Cloudflare AAAA record to 2001:db8::1", saved.Cache.LastSyncStatus.Message)
	assert.Equal(t, "rec1", saved.Settings.Cloudflare.RecordID)

	r.set("2001:db8::2")
	require.NoError(t, c.detect(ctx))
	_, updates, _ = p.stats()
	require.Len(t, updates, 2)
	assert.Equal(t, netip.MustParseAddr("2001:db8::2"), updates[1])
	assert.Equal(t, "2001:db8::2", c.Snapshot().CurrentIPv6)
}

func TestDetectAutoPushOff(t *testing.T) {
	store := configuredStore()
	store.cfg.Settings.AutoPush = false
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	require.NoError(t, c.detect(context.Background()))

	_, updates, _ := p.stats()
	assert.Empty(t, updates)
	saved := store.saved()
	assert.Equal(t, "2001:db8::1", saved.Cache.LastKnownIPv6)
	assert.Equal(t, SyncIdle, saved.Cache.LastSyncStatus.Kind)
}

func TestCachePersistedBeforePush(t *testing.T) {
	store := configuredStore()
	var seen string
	p := &fakeProvider{recordID: "rec1"}
	p.onUpdate = func() { seen = store.saved().Cache.LastKnownIPv6 }
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	require.NoError(t, c.detect(context.Background()))
	assert.Equal(t, "2001:db8::1", seen)
}

func TestDetectNoAddress(t *testing.T) {
	store := configuredStore()
	store.cfg.Cache.LastKnownIPv6 = "2001:db8::1"
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	c := newTestController(t, store, p, r)

	require.NoError(t, c.detect(context.Background()))

	_, updates, _ := p.stats()
	assert.Empty(t, updates)
	saved := store.saved()
	assert.Equal(t, "2001:db8::1", saved.Cache.LastKnownIPv6)
	assert.Nil(t, saved.Cache.LastIPv6ChangeTime)
	assert.Equal(t, SyncError, saved.Cache.LastSyncStatus.Kind)
	assert.Equal(t, ErrNoAddress.Error(), saved.Cache.LastSyncStatus.Message)
	assert.Empty(t, c.Snapshot().CurrentIPv6)
}

func TestDetectResolverError(t *testing.T) {
	store := configuredStore()
	r := &fakeResolver{err: errors.New("boom")}
	c := newTestController(t, store, &fakeProvider{}, r)

	require.Error(t, c.detect(context.Background()))
	status := store.saved().Cache.LastSyncStatus
	assert.Equal(t, SyncError, status.Kind)
	assert.Contains(t, status.Message, "boom")
}

func TestManualPushAlwaysPushes(t *testing.T) {
	store := configuredStore()
	store.cfg.Cache.LastKnownIPv6 = "2001:db8::1"
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	snap, err := c.ManualPush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncSuccess, snap.Cache.LastSyncStatus.Kind)
	_, updates, _ := p.stats()
	assert.Len(t, updates, 1)
}

func TestManualPushNoAddress(t *testing.T) {
	c := newTestController(t, configuredStore(), &fakeProvider{recordID: "rec1"}, &fakeResolver{})
	_, err := c.ManualPush(context.Background())
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestPushNotConfigured(t *testing.T) {
	store := &memStore{cfg: DefaultConfig()}
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	snap, err := c.ManualPush(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, SyncError, snap.Cache.LastSyncStatus.Kind)
	finds, updates, _ := p.stats()
	assert.Zero(t, finds)
	assert.Empty(t, updates)
}

func TestPushNoToken(t *testing.T) {
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, configuredStore(), p, r, UsingTokenStore(staticToken("")))

	_, err := c.ManualPush(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
	assert.False(t, c.Snapshot().HasToken)
}

func TestPushRemoteFailure(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1", updateErr: errors.New("9109: Invalid access token")}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	require.NoError(t, c.detect(context.Background()))
	status := store.saved().Cache.LastSyncStatus
	assert.Equal(t, SyncError, status.Kind)
	assert.Contains(t, status.Message, "Invalid access token")
	// the address is cached even though the push failed, so the next cycle won't retry it
	assert.Equal(t, "2001:db8::1", store.saved().Cache.LastKnownIPv6)
}

func TestPushPassesTTL(t *testing.T) {
	store := configuredStore()
	store.cfg.Settings.Cloudflare.TTL = 120
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	_, err := c.ManualPush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{120}, p.ttls)
}

func TestPushSingleFlight(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{
		recordID: "rec1",
		entered:  make(chan struct{}, 2),
		release:  make(chan struct{}),
	}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	errs := make(chan error, 2)
	push := func() {
		_, err := c.ManualPush(context.Background())
		errs <- err
	}
	go push()
	<-p.entered
	go push()

	// the second push must be parked on the lock, not inside the provider
	select {
	case <-p.entered:
		t.Fatalf("Expected second push to wait for the first")
	case <-time.After(50 * time.Millisecond):
	}
	close(p.release)
	<-p.entered
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	finds, updates, maxInFlight := p.stats()
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 1, finds, "second push should reuse the cached record id")
	assert.Len(t, updates, 2)
}

func TestRecordIDDiscardedWhenDomainChangesDuringLookup(t *testing.T) {
	store := configuredStore()
	r := &fakeResolver{}
	r.set("2001:db8::1")
	p := &fakeProvider{recordID: "rec1"}
	c := newTestController(t, store, p, r)

	p.onFind = func() {
		s := c.Snapshot().Settings
		s.Cloudflare.Domain = "other.example.com"
		_, err := c.SaveSettings(s)
		require.NoError(t, err)
	}
	_, err := c.ManualPush(context.Background())
	require.NoError(t, err)

	saved := store.saved().Settings.Cloudflare
	assert.Equal(t, "other.example.com", saved.Domain)
	assert.Empty(t, saved.RecordID, "record id of the old domain must not be saved for the new one")
}

func TestLookupRecordID(t *testing.T) {
	store := &memStore{cfg: DefaultConfig()}
	p := &fakeProvider{recordID: "rec9"}
	c := newTestController(t, store, p, &fakeResolver{})

	snap, err := c.LookupRecordID(context.Background(), " zone1 ", " home.example.com ")
	require.NoError(t, err)
	assert.Equal(t, CloudflareSettings{ZoneID: "zone1", Domain: "home.example.com", RecordID: "rec9"}, snap.Settings.Cloudflare)
	assert.Equal(t, snap.Settings, store.saved().Settings)
}

func TestLookupRecordIDErrors(t *testing.T) {
	p := &fakeProvider{findErr: fmt.Errorf("%w for domain home.example.com", ErrRecordNotFound)}
	c := newTestController(t, &memStore{cfg: DefaultConfig()}, p, &fakeResolver{})

	_, err := c.LookupRecordID(context.Background(), "zone1", "home.example.com")
	require.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, SyncError, c.Snapshot().Cache.LastSyncStatus.Kind)

	_, err = c.LookupRecordID(context.Background(), "", "home.example.com")
	require.ErrorIs(t, err, ErrNotConfigured)

	c = newTestController(t, &memStore{cfg: DefaultConfig()}, p, &fakeResolver{}, UsingTokenStore(nil))
	_, err = c.LookupRecordID(context.Background(), "zone1", "home.example.com")
	require.ErrorIs(t, err, ErrNoToken)
}

func TestSaveSettings(t *testing.T) {
	store := configuredStore()
	store.cfg.Settings.Cloudflare.RecordID = "rec1"
	store.cfg.Cache.LastKnownIPv6 = "2001:db8::1"
	var snapshots int
	c := newTestController(t, store, &fakeProvider{}, &fakeResolver{}, WithSnapshotHook(func(Snapshot) { snapshots++ }))

	s := c.Snapshot().Settings
	s.Cloudflare.Domain = " HOME.example.com "
	s.SelectedInterface = "eth0"
	snap, err := c.SaveSettings(s)
	require.NoError(t, err)
	assert.Equal(t, "rec1", snap.Settings.Cloudflare.RecordID, "same domain keeps the record id")
	assert.Equal(t, "eth0", store.saved().Settings.SelectedInterface)
	assert.Equal(t, "2001:db8::1", store.saved().Cache.LastKnownIPv6)
	assert.Equal(t, 1, snapshots)

	select {
	case <-c.wake.C():
	default:
		t.Fatalf("Expected a pending wake after saving settings")
	}

	s = snap.Settings
	s.Cloudflare.Domain = "other.example.com"
	snap, err = c.SaveSettings(s)
	require.NoError(t, err)
	assert.Empty(t, snap.Settings.Cloudflare.RecordID)
	assert.Empty(t, store.saved().Settings.Cloudflare.RecordID)
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	store := configuredStore()
	c := newTestController(t, store, &fakeProvider{}, &fakeResolver{})
	store.err = errors.New("disk full")

	s := c.Snapshot().Settings
	s.Cloudflare.Domain = "other.example.com"
	_, err := c.SaveSettings(s)
	require.Error(t, err)
	assert.Equal(t, "home.example.com", c.Snapshot().Settings.Cloudflare.Domain)
}

func TestStatusVisibleWhenSaveFails(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1", updateErr: errors.New("9109: Invalid access token")}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)
	store.err = errors.New("disk full")

	snap, err := c.ManualPush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid access token")
	assert.Equal(t, SyncError, snap.Cache.LastSyncStatus.Kind)
	assert.Contains(t, snap.Cache.LastSyncStatus.Message, "Invalid access token")
	assert.Equal(t, SyncIdle, store.saved().Cache.LastSyncStatus.Kind, "nothing reached the store")

	finds, _, _ := p.stats()
	assert.Equal(t, 1, finds)
	assert.Equal(t, "rec1", c.Snapshot().Settings.Cloudflare.RecordID)
}

func TestPushContinuesWhenRecordIDSaveFails(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)
	store.err = errors.New("disk full")

	snap, err := c.ManualPush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncSuccess, snap.Cache.LastSyncStatus.Kind)
	assert.Equal(t, "rec1", snap.Settings.Cloudflare.RecordID)

	_, err = c.ManualPush(context.Background())
	require.NoError(t, err)
	finds, updates, _ := p.stats()
	assert.Equal(t, 1, finds, "the record id found by the first push is reused")
	assert.Len(t, updates, 2)
}

func TestDetectCacheSaveFailure(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)
	store.err = errors.New("disk full")

	require.Error(t, c.detect(context.Background()))
	_, updates, _ := p.stats()
	assert.Empty(t, updates, "nothing is pushed until the new address is saved")
	status := c.Snapshot().Cache.LastSyncStatus
	assert.Equal(t, SyncError, status.Kind)
	assert.Contains(t, status.Message, "disk full")
}

func TestManualPushCancelledWhileWaiting(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{recordID: "rec1"}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	require.NoError(t, c.pushLock.Acquire(context.Background(), 1))
	defer c.pushLock.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := c.ManualPush(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, SyncError, snap.Cache.LastSyncStatus.Kind)
	_, updates, _ := p.stats()
	assert.Empty(t, updates)
}

func TestDetectAndManualPushSingleFlight(t *testing.T) {
	store := configuredStore()
	p := &fakeProvider{
		recordID: "rec1",
		entered:  make(chan struct{}, 2),
		release:  make(chan struct{}),
	}
	r := &fakeResolver{}
	r.set("2001:db8::1")
	c := newTestController(t, store, p, r)

	detected := make(chan error, 1)
	go func() { detected <- c.detect(context.Background()) }()
	<-p.entered

	pushed := make(chan error, 1)
	go func() {
		_, err := c.ManualPush(context.Background())
		pushed <- err
	}()
	select {
	case <-p.entered:
		t.Fatalf("Expected the manual push to wait for the automatic one")
	case <-time.After(50 * time.Millisecond):
	}
	close(p.release)
	<-p.entered
	require.NoError(t, <-detected)
	require.NoError(t, <-pushed)

	_, updates, maxInFlight := p.stats()
	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, updates, 2)
}

func TestNetworkChangedHook(t *testing.T) {
	var changes int
	r := &fakeResolver{}
	eth0 := InterfaceInfo{ID: "eth0", Label: "eth0", IPv6Addresses: []string{"2001:db8::1"}}
	r.set("2001:db8::1", eth0)
	store := configuredStore()
	store.cfg.Settings.AutoPush = false
	c := newTestController(t, store, &fakeProvider{}, r, WithNetworkChangedHook(func() { changes++ }))
	ctx := context.Background()

	require.NoError(t, c.detect(ctx))
	assert.Equal(t, 1, changes)
	require.NoError(t, c.detect(ctx))
	assert.Equal(t, 1, changes)

	eth0.IPv6Addresses = []string{"2001:db8::1", "2001:db8::2"}
	r.set("2001:db8::1", eth0)
	require.NoError(t, c.detect(ctx))
	assert.Equal(t, 2, changes)
	assert.Equal(t, []InterfaceInfo{eth0}, c.Snapshot().Interfaces)
}

func TestRunStopsOnShutdown(t *testing.T) {
	r := &fakeResolver{}
	c := newTestController(t, configuredStore(), &fakeProvider{recordID: "rec1"}, r)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	require.Eventually(t, func() bool { return r.callCount() >= 1 }, time.Second, 5*time.Millisecond)

	c.Shutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Expected Run to return after Shutdown")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newTestController(t, configuredStore(), &fakeProvider{recordID: "rec1"}, &fakeResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("Expected Run to return after cancel")
	}
}

func TestRunWakesOnNotification(t *testing.T) {
	r := &fakeResolver{}
	notified := make(chan func(), 1)
	watch := func(_ context.Context, notify func()) error {
		notified <- notify
		return nil
	}
	c := newTestController(t, configuredStore(), &fakeProvider{recordID: "rec1"}, r, UsingWatcher(watch))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	notify := <-notified
	require.Eventually(t, func() bool { return r.callCount() == 1 }, time.Second, 5*time.Millisecond)
	notify()
	require.Eventually(t, func() bool { return r.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWithPollIntervalMinimum(t *testing.T) {
	c := newTestController(t, configuredStore(), &fakeProvider{}, &fakeResolver{}, WithPollInterval(time.Second))
	assert.Equal(t, minPollInterval, c.pollInterval)

	c = newTestController(t, configuredStore(), &fakeProvider{}, &fakeResolver{}, WithPollInterval(0))
	assert.Zero(t, c.pollInterval)
}
