//go:build !linux && !windows

package stability

// macOS exposes no prefix/suffix origin metadata through getifaddrs,
// so darwin and every other platform rely on the /64 heuristic in RankFor.
func collect() Index {
	return make(Index)
}
