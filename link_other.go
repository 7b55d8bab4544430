//go:build !linux

package ddns

func linkSpeedMbps(string) *uint64 { return nil }
