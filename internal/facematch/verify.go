package facematch

// Verification is the outcome of comparing the live capture with a freshly
// extracted enrollment descriptor.
type Verification struct {
	Distance  float64
	Threshold float64
	Passed    bool
}

// Verify checks the live descriptors against fresh, the descriptor computed
// from the identity's current enrollment image, using the same mean-distance
// aggregation as Score.
func Verify(live []Descriptor, fresh Descriptor, threshold float64) (Verification, error) {
	d, err := MeanDistance(live, fresh)
	if err != nil {
		return Verification{}, err
	}
	return Verification{Distance: d, Threshold: threshold, Passed: d <= threshold}, nil
}
