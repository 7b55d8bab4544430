package ddns

import (
	"net/netip"
	"slices"
	"time"
)

// Settings are the user-editable options persisted by a Store.
type Settings struct {
	// SelectedInterface restricts address selection to one interface. Empty means all interfaces.
	SelectedInterface string             `json:"selectedInterface,omitempty"`
	AutoPush          bool               `json:"autoPush"`
	Cloudflare        CloudflareSettings `json:"cloudflare"`
	Homepage          HomepageSettings   `json:"homepage"`
}

type CloudflareSettings struct {
	ZoneID   string `json:"zoneId"`
	Domain   string `json:"domain"`
	RecordID string `json:"recordId"`
	TTL      int    `json:"ttl,omitempty"`
}

// DefaultSettings returns the settings used when nothing has been saved yet.
func DefaultSettings() Settings {
	return Settings{AutoPush: true}
}

type SyncStatusKind string

const (
	SyncIdle    SyncStatusKind = "idle"
	SyncSuccess SyncStatusKind = "success"
	SyncError   SyncStatusKind = "error"
)

type SyncStatus struct {
	Kind    SyncStatusKind `json:"kind"`
	Message string         `json:"message,omitempty"`
}

// RuntimeCache is the controller's persisted memory of the last observed address and sync attempt.
type RuntimeCache struct {
	LastKnownIPv6      string     `json:"lastKnownIpv6,omitempty"`
	LastIPv6ChangeTime *time.Time `json:"lastIpv6ChangeTime,omitempty"`
	LastSyncTime       *time.Time `json:"lastSyncTime,omitempty"`
	LastSyncStatus     SyncStatus `json:"lastSyncStatus"`
}

// Config is the document a Store persists.
type Config struct {
	Settings Settings     `json:"settings"`
	Cache    RuntimeCache `json:"cache"`
}

// DefaultConfig returns default settings and an idle cache.
func DefaultConfig() Config {
	return Config{
		Settings: DefaultSettings(),
		Cache:    RuntimeCache{LastSyncStatus: SyncStatus{Kind: SyncIdle}},
	}
}

func (c Config) clone() Config {
	c.Settings.Homepage.Services = slices.Clone(c.Settings.Homepage.Services)
	if t := c.Cache.LastIPv6ChangeTime; t != nil {
		v := *t
		c.Cache.LastIPv6ChangeTime = &v
	}
	if t := c.Cache.LastSyncTime; t != nil {
		v := *t
		c.Cache.LastSyncTime = &v
	}
	return c
}

// InterfaceInfo describes one network interface for display.
// Nothing in address selection depends on it.
type InterfaceInfo struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	MACAddress    string   `json:"macAddress,omitempty"`
	IPv6Addresses []string `json:"ipv6Addresses"`
	LinkSpeedMbps *uint64  `json:"linkSpeedMbps,omitempty"`
}

func (i InterfaceInfo) equal(o InterfaceInfo) bool {
	if i.ID != o.ID || i.Label != o.Label || i.MACAddress != o.MACAddress {
		return false
	}
	if (i.LinkSpeedMbps == nil) != (o.LinkSpeedMbps == nil) {
		return false
	}
	if i.LinkSpeedMbps != nil && *i.LinkSpeedMbps != *o.LinkSpeedMbps {
		return false
	}
	return slices.Equal(i.IPv6Addresses, o.IPv6Addresses)
}

func equalInterfaces(a, b []InterfaceInfo) bool {
	return slices.EqualFunc(a, b, InterfaceInfo.equal)
}

func cloneInterfaces(in []InterfaceInfo) []InterfaceInfo {
	if in == nil {
		return nil
	}
	out := make([]InterfaceInfo, len(in))
	for i, info := range in {
		info.IPv6Addresses = slices.Clone(info.IPv6Addresses)
		if info.LinkSpeedMbps != nil {
			v := *info.LinkSpeedMbps
			info.LinkSpeedMbps = &v
		}
		out[i] = info
	}
	return out
}

// Observation is the result of one resolver pass.
type Observation struct {
	Interfaces []InterfaceInfo
	Addr       netip.Addr
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Settings    Settings        `json:"settings"`
	Cache       RuntimeCache    `json:"cache"`
	CurrentIPv6 string          `json:"currentIpv6,omitempty"`
	Interfaces  []InterfaceInfo `json:"interfaces"`
	HasToken    bool            `json:"hasToken"`
}
