package stability

import (
	"errors"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	gaaFlagIncludeAllInterfaces = 0x100
	initialAdapterBufferSize    = 15000
	adapterBufferRetries        = 3
)

func collect() Index {
	ix := make(Index)
	for _, a := range adapterAddresses() {
		ix.Upsert(a.iface, a.addr, ClassifyOrigin(a.prefixOrigin, a.suffixOrigin))
	}
	return ix
}

type unicastOrigin struct {
	iface        string
	addr         netip.Addr
	prefixOrigin int32
	suffixOrigin int32
}

// adapterAddresses copies the IPv6 unicast entries out of the GetAdaptersAddresses buffer
// so no pointer into that buffer outlives this function.
func adapterAddresses() []unicastOrigin {
	size := uint32(initialAdapterBufferSize)
	var buf []byte
	for retries := adapterBufferRetries; ; retries-- {
		buf = make([]byte, size)
		err := windows.GetAdaptersAddresses(windows.AF_UNSPEC, gaaFlagIncludeAllInterfaces, 0,
			(*windows.IpAdapterAddresses)(unsafe.Pointer(&buf[0])), &size)
		if err == nil {
			break
		}
		if !errors.Is(err, windows.ERROR_BUFFER_OVERFLOW) || retries == 0 || size <= uint32(len(buf)) {
			return nil
		}
	}
	if size == 0 {
		return nil
	}

	var out []unicastOrigin
	for aa := (*windows.IpAdapterAddresses)(unsafe.Pointer(&buf[0])); aa != nil; aa = aa.Next {
		name := windows.UTF16PtrToString(aa.FriendlyName)
		for ua := aa.FirstUnicastAddress; ua != nil; ua = ua.Next {
			ip := ua.Address.IP()
			if ip == nil || ip.To4() != nil {
				continue
			}
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			out = append(out, unicastOrigin{
				iface:        name,
				addr:         addr,
				prefixOrigin: ua.PrefixOrigin,
				suffixOrigin: ua.SuffixOrigin,
			})
		}
	}
	return out
}
