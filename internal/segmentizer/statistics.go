package segmentizer

import "math"

// statistics tracks a 1-second rolling throughput counter plus a
// lifetime running mean/variance (Welford's algorithm) and a bounded
// sample buffer for the median, following
// original_source/src/vast/sink/segmentizer.cc's stats_ member
// (timed_add/mean/median/variance).
type statistics struct {
	windowStart int64 // nanoseconds
	windowCount int64
	windowNanos int64
	last        float64
	count       int64
	mean        float64
	m2          float64
	samples     []float64
	maxSamples  int
}

func newStatistics(windowNanos int64) *statistics {
	return &statistics{windowNanos: windowNanos, maxSamples: 4096}
}

// add registers n events at time nowNanos. It returns true when this
// call closed a 1-second window, in which case Last() reports that
// window's events-per-second rate.
func (s *statistics) add(n int64, nowNanos int64) (windowClosed bool) {
	if s.windowStart == 0 {
		s.windowStart = nowNanos
	}
	s.windowCount += n

	if nowNanos-s.windowStart < s.windowNanos {
		return false
	}

	elapsed := float64(nowNanos-s.windowStart) / 1e9
	if elapsed <= 0 {
		elapsed = 1
	}
	s.last = float64(s.windowCount) / elapsed
	s.record(s.last)

	s.windowStart = nowNanos
	s.windowCount = 0
	return true
}

// record folds one rate sample into the lifetime mean/variance and the
// bounded sample buffer the median is computed from.
func (s *statistics) record(v float64) {
	s.count++
	delta := v - s.mean
	s.mean += delta / float64(s.count)
	delta2 := v - s.mean
	s.m2 += delta * delta2

	if len(s.samples) < s.maxSamples {
		s.samples = append(s.samples, v)
	} else {
		s.samples[int(s.count)%s.maxSamples] = v
	}
}

// Last returns the most recently closed window's events-per-second rate.
func (s *statistics) Last() float64 { return s.last }

// Mean returns the lifetime running mean of closed-window rates.
func (s *statistics) Mean() float64 { return s.mean }

// Variance returns the lifetime running variance of closed-window rates.
func (s *statistics) Variance() float64 {
	if s.count < 2 {
		return 0
	}
	return s.m2 / float64(s.count-1)
}

// StdDev returns the lifetime standard deviation of closed-window rates.
func (s *statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Median returns the median of the sampled closed-window rates.
func (s *statistics) Median() float64 {
	n := len(s.samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, s.samples)
	// insertion sort: the sample buffer is bounded (maxSamples) and
	// this runs only once per closed window, so O(n^2) is fine and
	// keeps this file dependency-free.
	for i := 1; i < n; i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
