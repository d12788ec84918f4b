package facematch

import (
	"errors"
	"testing"
)

func TestVerify(t *testing.T) {
	fresh := Descriptor{1, 0}

	tests := []struct {
		name       string
		live       []Descriptor
		threshold  float64
		wantPassed bool
	}{
		{"identical frames", []Descriptor{{1, 0}, {1, 0}}, 0.45, true},
		{"one frame off", []Descriptor{{1, 0}, {0, 1}}, 0.45, false},
		{"generous threshold", []Descriptor{{1, 0}, {0, 1}}, 0.8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(tt.live, fresh, tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Passed != tt.wantPassed {
				t.Errorf("Passed = %v (distance %v), want %v", got.Passed, got.Distance, tt.wantPassed)
			}
			if got.Threshold != tt.threshold {
				t.Errorf("Threshold = %v, want %v", got.Threshold, tt.threshold)
			}
		})
	}
}

func TestVerify_Errors(t *testing.T) {
	if _, err := Verify(nil, Descriptor{1, 0}, 0.45); !errors.Is(err, ErrNoLiveDescriptors) {
		t.Errorf("expected ErrNoLiveDescriptors, got %v", err)
	}
	if _, err := Verify([]Descriptor{{1, 0}}, Descriptor{1, 0, 0}, 0.45); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
