// Package facematch holds the face-match decision procedure: descriptor
// math, the enrolled pool, candidate scoring, the accept/ambiguous/reject
// decision and the final re-verification check.
//
// Everything here is pure. I/O (camera, directory, image store, extractor)
// lives in the login package, which drives these functions.
package facematch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDimensionMismatch is an integrity error: two descriptors produced
	// by different models (or a corrupted record) cannot be compared.
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
	// ErrNoLiveDescriptors is returned when scoring is attempted without any
	// captured frames.
	ErrNoLiveDescriptors = errors.New("no live descriptors")
	// ErrNonFiniteDescriptor marks a descriptor with a NaN or infinite
	// component. Such a vector has no meaningful distance to anything.
	ErrNonFiniteDescriptor = errors.New("descriptor has non-finite components")
)

// Descriptor is a fixed-length face feature vector.
type Descriptor []float64

// Normalize returns d scaled to unit L2 norm. A zero vector is returned
// unchanged (its norm is treated as 1). The input is never modified.
func Normalize(d Descriptor) Descriptor {
	out := make(Descriptor, len(d))
	norm := floats.Norm(d, 2)
	if norm == 0 {
		norm = 1
	}
	floats.ScaleTo(out, 1/norm, d)
	return out
}

// Finite reports whether every component of d is a finite number.
func (d Descriptor) Finite() bool {
	for _, x := range d {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if !a.Finite() || !b.Finite() {
		return 0, ErrNonFiniteDescriptor
	}
	return floats.Distance(a, b, 2), nil
}

// MeanDistance averages the distance from every live descriptor to ref.
// This is the aggregation used both for pool scoring and for final
// re-verification.
func MeanDistance(live []Descriptor, ref Descriptor) (float64, error) {
	if len(live) == 0 {
		return 0, ErrNoLiveDescriptors
	}
	var sum float64
	for i, d := range live {
		dist, err := Distance(d, ref)
		if err != nil {
			return 0, fmt.Errorf("frame %d: %w", i, err)
		}
		sum += dist
	}
	return sum / float64(len(live)), nil
}

// FromFloat32 widens an embedding returned by the extractor.
func FromFloat32(v []float32) Descriptor {
	out := make(Descriptor, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Float32 narrows d for float32 vector stores (pgvector, HNSW).
func (d Descriptor) Float32() []float32 {
	out := make([]float32, len(d))
	for i, x := range d {
		out[i] = float32(x)
	}
	return out
}
