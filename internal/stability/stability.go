// Package stability ranks IPv6 addresses by how likely the operating system is to keep them assigned.
//
// Each platform contributes a [Source] that reads whatever per-address metadata the OS exposes.
// Platforms without such metadata return an empty [Index] and rely on the shared /64 heuristic in [Index.RankFor].
package stability

import (
	"fmt"
	"maps"
	"net/netip"
)

// Rank orders addresses from most to least suitable for a DNS record.
// Lower values are preferred.
type Rank int

const (
	// PreferredStable is an address the OS reports as permanent or stable-privacy.
	PreferredStable Rank = iota
	// Stable is a normal global /64 assignment.
	Stable
	// Fallback covers unknown, tentative, deprecated and otherwise transitional addresses.
	Fallback
	// Temporary is an address explicitly marked as a privacy/temporary address.
	Temporary
)

func (r Rank) String() string {
	switch r {
	case PreferredStable:
		return "preferred-stable"
	case Stable:
		return "stable"
	case Fallback:
		return "fallback"
	case Temporary:
		return "temporary"
	}
	return fmt.Sprintf("Rank(%d)", int(r))
}

// Key identifies one address on one interface.
type Key struct {
	Interface string
	Addr      netip.Addr
}

// Index maps interface addresses to their rank.
// The zero value is not usable; use make(Index) or [Build].
type Index map[Key]Rank

// Upsert records rank for the address unless an equal or more preferred rank is already present.
func (ix Index) Upsert(iface string, addr netip.Addr, rank Rank) {
	k := Key{Interface: iface, Addr: addr}
	if existing, ok := ix[k]; ok && existing <= rank {
		return
	}
	ix[k] = rank
}

// RankFor returns the recorded rank for the address.
// Addresses without an entry are ranked Stable when they sit in a /64 and Fallback otherwise.
func (ix Index) RankFor(iface string, addr netip.Addr, prefixLen int) Rank {
	if r, ok := ix[Key{Interface: iface, Addr: addr}]; ok {
		return r
	}
	if prefixLen == 64 {
		return Stable
	}
	return Fallback
}

// Source reads per-address stability metadata from the operating system.
// Collect never fails; missing data yields an empty index.
type Source interface {
	Collect() Index
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() Index

func (f SourceFunc) Collect() Index { return f() }

// Observed is one IPv6 network reported by an interface.
type Observed struct {
	Interface string
	Prefix    netip.Prefix
}

// Build collects an index from src and seeds it with every observed address,
// so that each of them has at least the heuristic rank.
// A nil src is treated as a source with no data. The index returned by src is not modified.
func Build(src Source, observed []Observed) Index {
	ix := make(Index)
	if src != nil {
		maps.Copy(ix, src.Collect())
	}
	for _, o := range observed {
		addr := o.Prefix.Addr()
		ix.Upsert(o.Interface, addr, ix.RankFor(o.Interface, addr, o.Prefix.Bits()))
	}
	return ix
}

// Platform returns the Source for the operating system the binary was built for.
func Platform() Source {
	return SourceFunc(collect)
}
