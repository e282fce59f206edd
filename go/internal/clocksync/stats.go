package clocksync

import "sort"

func sorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

// Median returns the middle value, or the mean of the two middle values for
// an even count. It does not modify values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := sorted(values)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Variance is the population variance of values.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

// TrimmedVariance ranks values, drops the trim lowest and trim highest and
// returns the variance of what is left.
func TrimmedVariance(values []float64, trim int) float64 {
	s := sorted(values)
	if trim < 0 || 2*trim >= len(s) {
		return Variance(s)
	}
	return Variance(s[trim : len(s)-trim])
}
