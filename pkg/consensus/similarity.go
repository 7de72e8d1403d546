package consensus

import "math"

// Distance is the Euclidean distance between two descriptors. Descriptors of
// different length never match.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Similarity maps a distance onto [0,1] where scale is the distance that counts
// as completely dissimilar.
func Similarity(a, b []float64, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	s := 1 - Distance(a, b)/scale
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	return s
}

// BestSimilarity compares a descriptor against every stored sample of one user.
func BestSimilarity(desc []float64, samples [][]float64, scale float64) float64 {
	var best float64
	for _, s := range samples {
		if v := Similarity(desc, s, scale); v > best {
			best = v
		}
	}
	return best
}
