package trafficcycle

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// median returns the middle value, averaging the two central values for even
// sample counts. NaN samples are ignored.
func median(values []float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// interQuantileMean averages the samples that lie between the lo and hi
// quantiles (inclusive).
func interQuantileMean(values []float64, lo, hi float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	qlo := percentile(sorted, lo)
	qhi := percentile(sorted, hi)

	inner := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if v >= qlo && v <= qhi {
			inner = append(inner, v)
		}
	}
	if len(inner) == 0 {
		return math.NaN()
	}
	return stat.Mean(inner, nil)
}

// percentile interpolates linearly between the closest ranks at (n-1)*p, the
// default definition of numpy and R (Hyndman-Fan type 7). sorted must be
// ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	i := int(math.Floor(h))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-float64(i))*(sorted[i+1]-sorted[i])
}

// rollingMean is a centered moving average that skips NaN entries and yields
// NaN only where the whole window is empty.
func rollingMean(values []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		var sum float64
		var n int
		for j := max(0, i-half); j <= min(len(values)-1, i+half); j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// backFill replaces NaN entries with the next non-NaN value.
func backFill(values []float64) {
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
			continue
		}
		next = values[i]
	}
}
