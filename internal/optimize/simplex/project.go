// Package simplex provides Euclidean projection onto the probability
// simplex {w : w ≥ 0, Σw = 1}, the shared constraint set of the portfolio
// optimizers.
package simplex

import "sort"

// Project returns the Euclidean projection of v onto the simplex using the
// sort-and-threshold algorithm. The input is not modified.
func Project(v []float64) []float64 {
	n := len(v)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{1.0}
	}

	sorted := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	cumSum := 0.0
	theta := 0.0
	for i := 0; i < n; i++ {
		cumSum += sorted[i]
		t := (cumSum - 1.0) / float64(i+1)
		if sorted[i] > t {
			theta = t
		}
	}

	out := make([]float64, n)
	for i, x := range v {
		w := x - theta
		if w < 0 {
			w = 0
		}
		out[i] = w
	}
	return out
}

// Normalize rescales a non-negative vector to sum to one, falling back to
// equal weights when the sum is zero. The input is not modified.
func Normalize(v []float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
