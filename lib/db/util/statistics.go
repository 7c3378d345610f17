package util

import (
	"math"
	"sync/atomic"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation" yaml:"std_deviation"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
	Mean         float64 `json:"mean" yaml:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio" yaml:"min_max_ratio"`
}

// NewStats computes mean, population standard deviation, minimum and maximum
// of values. An empty slice yields the zero Stats.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(sq / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

// DistributionStats rates how evenly entries are spread over partitions.
type DistributionStats struct {
	Stats `yaml:",inline"`

	// DistributionQuality is 1 for a perfectly even spread and approaches 0
	// as the coefficient of variation grows and the min/max ratio shrinks.
	DistributionQuality float64 `json:"distribution_quality" yaml:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for the given partition sizes
func NewDistributionStats(sizes []float64) DistributionStats {
	stats := NewStats(sizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// Ratio returns part/total, or 0 when total is 0.
func Ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// sizeBoundaries are the inclusive upper bounds of the histogram buckets:
// 16 B, 64 B, 256 B ... 4 GiB, each four times the previous one. Larger sizes
// go to an overflow bucket.
var sizeBoundaries = func() []int {
	bounds := make([]int, 0, 15)
	for b := 16; b <= 1<<32; b <<= 2 {
		bounds = append(bounds, b)
	}
	return bounds
}()

// SizeHistogram counts value sizes in exponentially growing buckets. It is
// safe for concurrent use; samples are recorded with atomic adds.
type SizeHistogram struct {
	buckets []atomic.Int64 // one per boundary plus overflow
	count   atomic.Int64
	sum     atomic.Int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]atomic.Int64, len(sizeBoundaries)+1)}
}

// AddSample records one size.
func (h *SizeHistogram) AddSample(size int) {
	i := 0
	for i < len(sizeBoundaries) && size > sizeBoundaries[i] {
		i++
	}
	h.buckets[i].Add(1)
	h.count.Add(1)
	h.sum.Add(int64(size))
}

// Count returns the number of samples.
func (h *SizeHistogram) Count() int64 {
	return h.count.Load()
}

// AverageSize returns the exact mean of all samples.
func (h *SizeHistogram) AverageSize() int {
	n := h.count.Load()
	if n == 0 {
		return 0
	}
	return int(h.sum.Load() / n)
}

// MedianEstimate estimates the median size.
func (h *SizeHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// PercentileEstimate estimates the given percentile (0-100) as the midpoint
// of the bucket it falls into. The first bucket is estimated as half its
// bound, the overflow bucket as twice the largest bound.
func (h *SizeHistogram) PercentileEstimate(percentile int) int {
	n := h.count.Load()
	if n == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := max(int64(math.Ceil(float64(n)*float64(percentile)/100.0)), 1)
	var cumulative int64
	for i := range h.buckets {
		cumulative += h.buckets[i].Load()
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			return sizeBoundaries[len(sizeBoundaries)-1] * 2
		}
	}
	return h.AverageSize()
}

// Distribution returns the bucket bounds and the share of samples (in
// percent) per bucket. The last share belongs to the overflow bucket.
func (h *SizeHistogram) Distribution() ([]int, []float64) {
	shares := make([]float64, len(h.buckets))
	n := h.count.Load()
	if n == 0 {
		return sizeBoundaries, shares
	}
	for i := range h.buckets {
		shares[i] = float64(h.buckets[i].Load()) * 100.0 / float64(n)
	}
	return sizeBoundaries, shares
}

// Reset clears all samples. Samples added concurrently may survive.
func (h *SizeHistogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.count.Store(0)
	h.sum.Store(0)
}
