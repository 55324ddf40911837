package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.2, 3.14159, 0, -1, 1e-8}
	got := FromBytes(ToBytes(v))
	require.Len(t, got, len(v))
	for i := range v {
		assert.Equal(t, v[i], got[i])
	}
}

func TestL2NormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4, 0}
	L2Normalize(v)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)
}

func TestL2NormalizeFixedPoint(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	L2Normalize(v)
	second := append([]float32{}, v...)
	L2Normalize(second)
	for i := range v {
		assert.InDelta(t, float64(v[i]), float64(second[i]), 1e-6)
	}
}

func TestL2NormalizeZeroVectorPassthrough(t *testing.T) {
	v := []float32{0, 0, 0}
	got := L2Normalize(v)
	for _, f := range got {
		assert.Equal(t, float32(0), f)
	}
}

func TestDotRange(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 0.0, Dot(a, b), 1e-4)

	c := []float32{0.6, 0.8}
	d := []float32{0.6, 0.8}
	assert.InDelta(t, 1.0, Dot(c, d), 1e-4)
	assert.True(t, Dot(c, d) <= 1+1e-4)
	assert.True(t, Dot(c, d) >= -1-1e-4)
}

func TestDotUnequalLength(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	assert.Equal(t, float64(1+4), Dot(a, b))
}

func TestNormMatchesMath(t *testing.T) {
	v := []float32{3, 4}
	assert.InDelta(t, math.Sqrt(25), Norm(v), 1e-9)
}
