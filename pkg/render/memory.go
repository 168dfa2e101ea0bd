package render

import (
	"math"
	"runtime/debug"
	"runtime/metrics"
)

var memorySamples = []metrics.Sample{
	{Name: "/memory/classes/total:bytes"},
	{Name: "/memory/classes/heap/released:bytes"},
}

// MemoryHeadroom returns how many bytes the process may still allocate
// before reaching its soft memory limit (GOMEMLIMIT). Without a limit the
// headroom is unbounded.
func MemoryHeadroom() uint64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return math.MaxUint64
	}

	samples := make([]metrics.Sample, len(memorySamples))
	copy(samples, memorySamples)
	metrics.Read(samples)

	var used uint64
	if samples[0].Value.Kind() == metrics.KindUint64 {
		used = samples[0].Value.Uint64()
	}
	if samples[1].Value.Kind() == metrics.KindUint64 {
		used -= min(used, samples[1].Value.Uint64())
	}
	if used >= uint64(limit) {
		return 0
	}
	return uint64(limit) - used
}
