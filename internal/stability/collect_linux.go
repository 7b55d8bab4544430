package stability

import "os"

const ifInet6Path = "/proc/net/if_inet6"

func collect() Index {
	f, err := os.Open(ifInet6Path)
	if err != nil {
		return make(Index)
	}
	defer f.Close()
	return ParseIfInet6(f)
}
