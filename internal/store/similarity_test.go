package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical unit vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"scale invariant", []float32{2, 0, 0}, []float32{5, 0, 0}, 1.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreNormalization(t *testing.T) {
	// similarityScore maps cosine [-1,1] onto [0,1]; scoreFromCosineDistance
	// must land on the same value for distance = 1 - cosine.
	for _, cos := range []float32{-1, -0.5, 0, 0.37, 1} {
		fromCos := similarityScore(cos)
		fromDist := scoreFromCosineDistance(1 - cos)
		assert.InDelta(t, fromCos, fromDist, 1e-6, "cos=%v", cos)
		assert.GreaterOrEqual(t, float64(fromCos), 0.0)
		assert.LessOrEqual(t, float64(fromCos), 1.0)
	}
	assert.InDelta(t, 1.0, similarityScore(1), 1e-6)
	assert.InDelta(t, 0.0, similarityScore(-1), 1e-6)
	assert.InDelta(t, 0.5, similarityScore(0), 1e-6)
}

func TestNormalizeInPlace(t *testing.T) {
	vec := []float32{3, 4}
	normalizeInPlace(vec)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)

	zero := []float32{0, 0}
	normalizeInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero, "zero vector stays untouched")
}
