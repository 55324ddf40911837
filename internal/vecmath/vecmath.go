// Package vecmath provides the numeric primitives shared by the embedding
// service, the vector index, and the durable store: byte<->float32 codecs
// for the raw embedding column, L2 normalization, and dot product.
package vecmath

import (
	"encoding/binary"
	"math"
)

// ToBytes packs v as little-endian IEEE-754 float32, 4 bytes per element.
func ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// FromBytes unpacks little-endian IEEE-754 float32 bytes into a vector.
// Trailing bytes that don't complete a float32 are ignored.
func FromBytes(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// L2Normalize scales v to unit length in place and returns it. Vectors whose
// magnitude is below 1e-10 are returned unchanged, matching the reference
// encoder's treatment of degenerate (near-zero) embeddings.
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	mag := math.Sqrt(sumSq)
	if mag < 1e-10 {
		return v
	}
	for i, f := range v {
		v[i] = float32(float64(f) / mag)
	}
	return v
}

// Dot computes the dot product of a and b over their shared prefix length.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	return math.Sqrt(sumSq)
}
