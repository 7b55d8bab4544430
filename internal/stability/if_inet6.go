package stability

import (
	"bufio"
	"encoding/hex"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// Address flags from linux/if_addr.h.
const (
	ifaFTemporary     = 0x01
	ifaFDadFailed     = 0x08
	ifaFDeprecated    = 0x20
	ifaFTentative     = 0x40
	ifaFPermanent     = 0x80
	ifaFStablePrivacy = 0x800
)

// ParseIfInet6 reads the kernel's IPv6 address table in /proc/net/if_inet6 format:
//
//	20010db8000000000000000000000001 02 40 00 80 eth0
//
// The fields are address, interface index, prefix length, scope, flags and interface name,
// all numbers in hex. Lines that do not match are skipped.
func ParseIfInet6(r io.Reader) Index {
	ix := make(Index)
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) != 6 {
			continue
		}
		addr, ok := parseHexAddr(fields[0])
		if !ok {
			continue
		}
		prefixLen, err := strconv.ParseUint(fields[2], 16, 8)
		if err != nil {
			continue
		}
		flags, err := strconv.ParseUint(fields[4], 16, 32)
		if err != nil {
			continue
		}
		ix.Upsert(fields[5], addr, classifyFlags(uint32(flags), int(prefixLen)))
	}
	return ix
}

func classifyFlags(flags uint32, prefixLen int) Rank {
	switch {
	case flags&ifaFTemporary != 0:
		return Temporary
	case flags&(ifaFTentative|ifaFDeprecated|ifaFDadFailed) != 0:
		return Fallback
	case flags&(ifaFStablePrivacy|ifaFPermanent) != 0:
		return PreferredStable
	case prefixLen == 64:
		return Stable
	}
	return Fallback
}

func parseHexAddr(raw string) (netip.Addr, bool) {
	if len(raw) != 32 {
		return netip.Addr{}, false
	}
	var b [16]byte
	if _, err := hex.Decode(b[:], []byte(raw)); err != nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom16(b), true
}
