package vector

import "math"

// InnerProduct returns the inner product of two vectors. For unit-normalized
// vectors this equals cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// normalizedCopy returns a unit-norm copy of v. A zero vector is copied as-is.
func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	norm := L2Norm(out)
	if norm == 0 {
		return out
	}
	inv := float32(1.0 / norm)
	for i := range out {
		out[i] *= inv
	}
	return out
}
