package ddns

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// linkSpeedMbps reads the negotiated speed the kernel reports in Mbps.
// Virtual and down interfaces report -1 or fail to read, both of which mean unknown.
func linkSpeedMbps(name string) *uint64 {
	b, err := os.ReadFile(filepath.Join("/sys/class/net", name, "speed"))
	if err != nil {
		return nil
	}
	speed, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || speed <= 0 {
		return nil
	}
	v := uint64(speed)
	return &v
}
