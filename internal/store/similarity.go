package store

import "math"

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for zero-length or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// similarityScore maps a cosine value in [-1,1] to a score in [0,1].
// All backends report this normalization so rankings stay comparable
// across migrations.
func similarityScore(cos float32) float32 {
	return (1 + cos) / 2
}

// scoreFromCosineDistance maps a cosine distance in [0,2] to a score in
// [0,1]. Used by index-backed backends that report distances.
func scoreFromCosineDistance(dist float32) float32 {
	return 1 - dist/2
}

// normalizeInPlace scales v to unit length. Zero vectors are left as-is.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
