package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the distribution statistics of one peer group.
type Summary struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	P25    float64
	P75    float64
	N      int
}

// Summarize computes the distribution statistics of values. Percentiles are
// positional: the element at floor(q*n) of the sorted sample, without
// interpolation. It returns false for an empty sample.
func Summarize(values []float64) (Summary, bool) {
	n := len(values)
	if n == 0 {
		return Summary{}, false
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Mean:   stat.Mean(sorted, nil),
		Median: median(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		P25:    sorted[positional(n, 0.25)],
		P75:    sorted[positional(n, 0.75)],
		N:      n,
	}, true
}

// median expects sorted input and averages the two middle elements of an
// even-sized sample.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func positional(n int, q float64) int {
	i := int(float64(n) * q)
	if i >= n {
		i = n - 1
	}
	return i
}

// normalize maps v into [0,1] against the peer range. A degenerate range
// maps to the neutral 0.5.
func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}
