// Package stats contains the pure statistics helpers behind queue metrics:
// nearest-rank percentiles over task durations and priority banding.
package stats

import (
	"math"
	"sort"
)

// Priority bands for queue-depth grouping. Lower priority values are more
// urgent.
const (
	BandHigh   = "high"   // priority <= 3
	BandNormal = "normal" // priority 4..7
	BandLow    = "low"    // priority >= 8
)

// Band maps a task priority to its reporting band.
func Band(priority int) string {
	switch {
	case priority <= 3:
		return BandHigh
	case priority <= 7:
		return BandNormal
	default:
		return BandLow
	}
}

// Bands lists the priority bands in reporting order.
func Bands() []string {
	return []string{BandHigh, BandNormal, BandLow}
}

// Percentile computes the p-th percentile of values using the nearest-rank
// method: the smallest element whose rank is at least ceil(p/100 * n). The
// input is not modified. An empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p > 100 {
		p = 100
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Mean returns the arithmetic mean of values, 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
