//go:build nogpu

package visbuf

// deviceStats reports false: builds without GPU support have no delayed
// device counters.
func deviceStats(Recorder) (Stats, uint64, bool) { return Stats{}, 0, false }
