// Package vector holds the handful of arithmetic primitives the retrieval
// layer needs over raw embedding slices: how similar are two vectors, and
// how do you put one into unit length. Nothing here knows about articles,
// indexes, or scoring. It's pure numeric plumbing so pkg/search and
// pkg/store don't each grow their own slightly-different copy.
package vector

import "math"

// CosineSimilarity scores how closely two embeddings point in the same
// direction, in [-1, 1]: 1 means identical direction, 0 means orthogonal,
// -1 means opposite. Mismatched lengths or an empty input score 0 rather
// than panicking, since a corrupt or missing embedding shouldn't take
// down a whole retrieval pass.
//
// The three running sums (dot product and both magnitudes) are
// accumulated in float64 in a single pass even though the inputs are
// float32, so precision doesn't erode on longer vectors.
func CosineSimilarity(a, b []float32) float64 {
	dot, magA, magB := accumulate(a, b)
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineDistance is 1-CosineSimilarity, the form the ANN index walks: a
// graph search is expressed as "get closer to the query," so callers that
// compare distances rather than similarities can skip the subtraction at
// every call site.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// DotProduct is the raw inner product of two float32 vectors, accumulated
// in float64. For vectors already at unit length (see Normalize) this is
// equivalent to CosineSimilarity but skips the redundant magnitude pass,
// which matters on the hot path of a vector index scan.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i, av := range a {
		sum += float64(av) * float64(b[i])
	}
	return sum
}

// accumulate walks a and b once, returning the dot product and both
// squared magnitudes together so CosineSimilarity never has to make three
// separate passes over the same two slices.
func accumulate(a, b []float32) (dot, magA, magB float64) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, 0, 0
	}
	for i, av := range a {
		bv := float64(b[i])
		x := float64(av)
		dot += x * bv
		magA += x * x
		magB += bv * bv
	}
	return dot, magA, magB
}

// Normalize returns a copy of vec scaled to unit length. A zero vector
// comes back as a same-length zero vector rather than dividing by zero.
// The input is left untouched.
func Normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	magnitude := magnitudeOf(vec)
	if magnitude == 0 {
		return out
	}
	inv := float32(1 / magnitude)
	for i, v := range vec {
		out[i] = v * inv
	}
	return out
}

func magnitudeOf(vec []float32) float64 {
	var sumSquares float64
	for _, v := range vec {
		f := float64(v)
		sumSquares += f * f
	}
	return math.Sqrt(sumSquares)
}
