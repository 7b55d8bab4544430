package ddns

import (
	"context"
	"net/netip"
)

// Resolver reports the host's interfaces and the single address that should be published.
//
// selectedInterface restricts address selection to one interface when it is not empty.
// A zero Observation.Addr means no eligible address exists; that is not an error.
type Resolver interface {
	Resolve(ctx context.Context, selectedInterface string) (Observation, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, selectedInterface string) (Observation, error)

func (f ResolverFunc) Resolve(ctx context.Context, selectedInterface string) (Observation, error) {
	return f(ctx, selectedInterface)
}

// Provider updates an AAAA record at a DNS provider.
type Provider interface {
	// FindRecordID returns the id of the AAAA record for domain in zone.
	// It returns an error wrapping ErrRecordNotFound when there is none.
	FindRecordID(ctx context.Context, zoneID, domain, token string) (string, error)

	// UpdateRecord sets the content of an existing AAAA record.
	// A ttl of zero leaves the record's TTL unchanged.
	UpdateRecord(ctx context.Context, zoneID, recordID, token string, addr netip.Addr, ttl int) error
}

// Store persists settings and the runtime cache.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// TokenStore provides the API token used for provider calls.
// ok is false when no token has been stored.
type TokenStore interface {
	Token() (token string, ok bool, err error)
}
