package ddns

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// detect runs one detection cycle: observe, diff against the cache, and push on change when auto-push is on.
func (c *Controller) detect(ctx context.Context) error {
	c.mu.Lock()
	selected := c.cfg.Settings.SelectedInterface
	autoPush := c.cfg.Settings.AutoPush
	c.mu.Unlock()

	addr, networkChanged, err := c.observe(ctx, selected)
	defer func() {
		c.emitSnapshot()
		if networkChanged {
			c.emitNetworkChanged()
		}
	}()
	if err != nil {
		return c.fail(fmt.Errorf("error detecting IPv6 address: %w", err))
	}
	if !addr.IsValid() {
		c.logger.Printf("ddns: %s", ErrNoAddress)
		c.setStatus(SyncError, ErrNoAddress.Error())
		return nil
	}

	// Only the local cache is compared; the published record is never polled here.
	addrChanged, err := c.mutate(func(cfg *Config) bool {
		if cfg.Cache.LastKnownIPv6 == addr.String() {
			return false
		}
		now := c.now()
		cfg.Cache.LastKnownIPv6 = addr.String()
		cfg.Cache.LastIPv6ChangeTime = &now
		return true
	})
	if err != nil {
		return c.fail(fmt.Errorf("error updating IPv6 cache: %w", err))
	}
	if !addrChanged {
		return nil
	}
	c.logger.Printf("ddns: IPv6 address changed to %s", addr)
	if !autoPush {
		return nil
	}
	if err := c.push(ctx, addr); err != nil {
		c.logger.Printf("ddns: push failed: %s", err)
	}
	return nil
}

// observe runs the resolver and records its result as the current interface list and address.
// changed reports whether either differs from the previous observation.
func (c *Controller) observe(ctx context.Context, selected string) (addr netip.Addr, changed bool, err error) {
	obs, err := c.resolver.Resolve(ctx, selected)
	if err != nil {
		return netip.Addr{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	changed = !equalInterfaces(c.interfaces, obs.Interfaces) || c.current != obs.Addr
	c.interfaces = cloneInterfaces(obs.Interfaces)
	c.current = obs.Addr
	return obs.Addr, changed, nil
}

// ManualPush re-detects the address and pushes it regardless of the cache.
// It waits for any push already in flight.
func (c *Controller) ManualPush(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	selected := c.cfg.Settings.SelectedInterface
	c.mu.Unlock()

	addr, networkChanged, err := c.observe(ctx, selected)
	defer func() {
		c.emitSnapshot()
		if networkChanged {
			c.emitNetworkChanged()
		}
	}()
	if err != nil {
		return c.Snapshot(), c.fail(fmt.Errorf("error detecting IPv6 address: %w", err))
	}
	if !addr.IsValid() {
		return c.Snapshot(), c.fail(ErrNoAddress)
	}
	err = c.push(ctx, addr)
	return c.Snapshot(), err
}

// push sends addr to the provider under the push lock, looking up and caching the record id first if needed.
// The outcome is recorded as the sync status.
func (c *Controller) push(ctx context.Context, addr netip.Addr) error {
	if err := c.pushLock.Acquire(ctx, 1); err != nil {
		return c.fail(fmt.Errorf("error waiting for in-flight push: %w", err))
	}
	defer c.pushLock.Release(1)

	c.mu.Lock()
	cf := c.cfg.Settings.Cloudflare
	c.mu.Unlock()
	zoneID := strings.TrimSpace(cf.ZoneID)
	domain := strings.TrimSpace(cf.Domain)
	recordID := strings.TrimSpace(cf.RecordID)

	if zoneID == "" || domain == "" {
		return c.fail(ErrNotConfigured)
	}
	token, err := c.token()
	if err != nil {
		return c.fail(err)
	}

	if recordID == "" {
		c.logger.Printf("ddns: looking up AAAA record id for %s...", domain)
		recordID, err = c.provider.FindRecordID(ctx, zoneID, domain, token)
		if err != nil {
			return c.fail(fmt.Errorf("error looking up AAAA record for %s: %w", domain, err))
		}
		err = c.record(func(cfg *Config) bool {
			// settings may have been changed while the lookup was in flight
			if !sameTarget(cfg.Settings.Cloudflare, zoneID, domain) {
				return false
			}
			cfg.Settings.Cloudflare.RecordID = recordID
			return true
		})
		if err != nil {
			// the id is still cached in memory, so the push goes ahead
			c.logger.Printf("ddns: error saving record id: %s", err)
		}
	}

	c.logger.Printf("ddns: updating %s (record %s) to %s...", domain, recordID, addr)
	if err := c.provider.UpdateRecord(ctx, zoneID, recordID, token, addr, cf.TTL); err != nil {
		return c.fail(fmt.Errorf("error updating %s: %w", domain, err))
	}
	c.setStatus(SyncSuccess, fmt.Sprintf("Updated Cloudflare AAAA record to %s", addr))
	return nil
}

// LookupRecordID finds the AAAA record for domain in zone and stores zone, domain and record id in the settings.
func (c *Controller) LookupRecordID(ctx context.Context, zoneID, domain string) (Snapshot, error) {
	if err := c.pushLock.Acquire(ctx, 1); err != nil {
		return c.Snapshot(), c.fail(fmt.Errorf("error waiting for in-flight push: %w", err))
	}
	defer c.pushLock.Release(1)
	defer c.emitSnapshot()

	zoneID = strings.TrimSpace(zoneID)
	domain = strings.TrimSpace(domain)
	token, err := c.token()
	if err != nil {
		return c.Snapshot(), c.fail(err)
	}
	if zoneID == "" || domain == "" {
		return c.Snapshot(), c.fail(fmt.Errorf("zone id and domain are required to look up an AAAA record: %w", ErrNotConfigured))
	}

	recordID, err := c.provider.FindRecordID(ctx, zoneID, domain, token)
	if err != nil {
		return c.Snapshot(), c.fail(fmt.Errorf("error looking up AAAA record for %s: %w", domain, err))
	}
	_, err = c.mutate(func(cfg *Config) bool {
		cfg.Settings.Cloudflare.ZoneID = zoneID
		cfg.Settings.Cloudflare.Domain = domain
		cfg.Settings.Cloudflare.RecordID = recordID
		return true
	})
	if err != nil {
		return c.Snapshot(), c.fail(fmt.Errorf("error saving record id: %w", err))
	}
	c.logger.Printf("ddns: found AAAA record %s for %s", recordID, domain)
	return c.Snapshot(), nil
}

// SaveSettings replaces the settings, keeping the runtime cache.
// Changing the domain clears the cached record id. A detection cycle is scheduled afterwards.
func (c *Controller) SaveSettings(s Settings) (Snapshot, error) {
	_, err := c.mutate(func(cfg *Config) bool {
		if !strings.EqualFold(strings.TrimSpace(cfg.Settings.Cloudflare.Domain), strings.TrimSpace(s.Cloudflare.Domain)) {
			s.Cloudflare.RecordID = ""
		}
		s.Homepage.Services = slices.Clone(s.Homepage.Services)
		cfg.Settings = s
		return true
	})
	if err != nil {
		return c.Snapshot(), fmt.Errorf("error saving settings: %w", err)
	}
	c.Wake()
	c.emitSnapshot()
	return c.Snapshot(), nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	_, hasToken, _ := c.lookupToken()
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.cfg.clone()
	s := Snapshot{
		Settings:   cfg.Settings,
		Cache:      cfg.Cache,
		Interfaces: cloneInterfaces(c.interfaces),
		HasToken:   hasToken,
	}
	if c.current.IsValid() {
		s.CurrentIPv6 = c.current.String()
	}
	return s
}

// mutate applies fn to a copy of the config and, when fn reports a change, persists it.
// The in-memory config only changes once the store has accepted the new one.
func (c *Controller) mutate(fn func(*Config) bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cfg.clone()
	if !fn(&next) {
		return false, nil
	}
	if err := c.store.Save(next); err != nil {
		return false, err
	}
	c.cfg = next
	return true, nil
}

// record applies fn to the in-memory config and, when fn reports a change, persists it.
// Unlike mutate, the change is kept even if the store rejects it.
func (c *Controller) record(fn func(*Config) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !fn(&c.cfg) {
		return nil
	}
	return c.store.Save(c.cfg.clone())
}

// setStatus records the outcome of a sync attempt.
// A status that cannot be saved is still visible in snapshots.
func (c *Controller) setStatus(kind SyncStatusKind, message string) {
	err := c.record(func(cfg *Config) bool {
		now := c.now()
		cfg.Cache.LastSyncTime = &now
		cfg.Cache.LastSyncStatus = SyncStatus{Kind: kind, Message: message}
		return true
	})
	if err != nil {
		c.logger.Printf("ddns: error saving sync status: %s", err)
	}
}

// fail records err as the sync status and returns it.
func (c *Controller) fail(err error) error {
	c.setStatus(SyncError, err.Error())
	return err
}

func (c *Controller) token() (string, error) {
	token, ok, err := c.lookupToken()
	if err != nil {
		return "", fmt.Errorf("error reading API token: %w", err)
	}
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

func (c *Controller) lookupToken() (string, bool, error) {
	if c.tokens == nil {
		return "", false, nil
	}
	token, ok, err := c.tokens.Token()
	if err != nil || !ok || strings.TrimSpace(token) == "" {
		return "", false, err
	}
	return token, true, nil
}

func (c *Controller) emitSnapshot() {
	if c.onSnapshot != nil {
		c.onSnapshot(c.Snapshot())
	}
}

func (c *Controller) emitNetworkChanged() {
	if c.onNetworkChanged != nil {
		c.onNetworkChanged()
	}
}

func sameTarget(cf CloudflareSettings, zoneID, domain string) bool {
	return strings.TrimSpace(cf.ZoneID) == zoneID && strings.EqualFold(strings.TrimSpace(cf.Domain), domain)
}
