package facematch

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// MatchCandidate is one pool entry's aggregated distance to the live capture.
type MatchCandidate struct {
	IdentityKey string
	Distance    float64
}

// Score computes the mean distance from the live descriptors to every pool
// entry and returns the candidates sorted ascending by distance. Equal
// distances are ordered by identity key so results are deterministic.
func Score(live []Descriptor, pool *Pool) ([]MatchCandidate, error) {
	if !pool.Ready() {
		return nil, ErrPoolNotReady
	}
	if len(live) == 0 {
		return nil, ErrNoLiveDescriptors
	}

	candidates := make([]MatchCandidate, 0, pool.Len())
	for _, rec := range pool.records {
		d, err := MeanDistance(live, rec.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", rec.IdentityKey, err)
		}
		candidates = append(candidates, MatchCandidate{IdentityKey: rec.IdentityKey, Distance: d})
	}

	slices.SortFunc(candidates, func(a, b MatchCandidate) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return strings.Compare(a.IdentityKey, b.IdentityKey)
	})
	return candidates, nil
}
