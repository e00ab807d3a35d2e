package domain

import (
	"math"
	"sort"
)

// Aggregate statistics over float64 samples. NaN inputs are skipped rather
// than propagated: a NaN marks a missing sensor value, and every aggregate
// here is defined over the values that were actually observed. When no
// usable value remains the result is NaN, which the output adapters store
// as null.

// Mean returns the arithmetic mean of the non-NaN values in xs.
func Mean(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Median returns the 0.5 quantile of the non-NaN values in xs.
func Median(xs []float64) float64 {
	return Quantile(xs, 0.5)
}

// Quantile returns the p-quantile (0 ≤ p ≤ 1) of the non-NaN values in xs
// using linear interpolation between the two nearest order statistics:
// for n sorted values the quantile sits at rank h = (n-1)p, interpolated
// between positions floor(h) and floor(h)+1.
func Quantile(xs []float64, p float64) float64 {
	vals := compact(xs)
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)

	h := float64(len(vals)-1) * p
	lo := int(math.Floor(h))
	if lo < 0 {
		return vals[0]
	}
	if lo >= len(vals)-1 {
		return vals[len(vals)-1]
	}
	frac := h - float64(lo)
	return vals[lo] + frac*(vals[lo+1]-vals[lo])
}

// Max returns the largest non-NaN value in xs.
func Max(xs []float64) float64 {
	best := math.NaN()
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(best) || x > best {
			best = x
		}
	}
	return best
}

// compact copies xs without its NaN entries.
func compact(xs []float64) []float64 {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	return vals
}
