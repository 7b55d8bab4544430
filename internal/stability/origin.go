package stability

// Prefix and suffix origins as defined by NL_PREFIX_ORIGIN and NL_SUFFIX_ORIGIN in nldef.h.
const (
	PrefixOriginOther               = 0
	PrefixOriginManual              = 1
	PrefixOriginWellKnown           = 2
	PrefixOriginDhcp                = 3
	PrefixOriginRouterAdvertisement = 4

	SuffixOriginOther            = 0
	SuffixOriginManual           = 1
	SuffixOriginWellKnown        = 2
	SuffixOriginDhcp             = 3
	SuffixOriginLinkLayerAddress = 4
	SuffixOriginRandom           = 5
)

// ClassifyOrigin ranks a unicast address from the origin metadata Windows attaches to it.
func ClassifyOrigin(prefixOrigin, suffixOrigin int32) Rank {
	if prefixOrigin == PrefixOriginRouterAdvertisement && suffixOrigin != SuffixOriginRandom {
		return PreferredStable
	}
	if suffixOrigin == SuffixOriginRandom {
		return Temporary
	}
	if prefixOrigin == PrefixOriginDhcp || suffixOrigin == SuffixOriginDhcp || suffixOrigin == SuffixOriginLinkLayerAddress {
		return Stable
	}
	return Fallback
}
