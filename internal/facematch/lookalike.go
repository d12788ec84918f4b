package facematch

import (
	"cmp"
	"slices"
	"strings"

	"github.com/coder/hnsw"
)

const (
	// lookalikeNeighbors is how many nearest entries are inspected per identity.
	lookalikeNeighbors = 4
	lookalikeMaxLinks  = 16
)

// LookalikePair is two enrolled identities whose reference descriptors are
// close enough to make the ambiguity rule fire for either of them.
type LookalikePair struct {
	A, B     string
	Distance float64
}

// LookalikeIndex is an approximate nearest-neighbour index over a pool,
// used by operators to find enrollments that will keep producing ambiguous
// outcomes.
type LookalikeIndex struct {
	graph *hnsw.Graph[string]
	pool  *Pool
}

// NewLookalikeIndex indexes every record of a sealed pool.
func NewLookalikeIndex(pool *Pool) (*LookalikeIndex, error) {
	if !pool.Ready() {
		return nil, ErrPoolNotReady
	}

	g := hnsw.NewGraph[string]()
	g.M = lookalikeMaxLinks
	g.Ml = 1.0 / float64(lookalikeMaxLinks)
	g.Distance = hnsw.EuclideanDistance

	for _, rec := range pool.records {
		g.Add(hnsw.MakeNode(rec.IdentityKey, rec.Descriptor.Float32()))
	}
	return &LookalikeIndex{graph: g, pool: pool}, nil
}

// Nearest returns up to k enrolled identities closest to d, with exact
// float64 distances, closest first.
func (x *LookalikeIndex) Nearest(d Descriptor, k int) []MatchCandidate {
	if x.graph.Len() == 0 || k <= 0 {
		return nil
	}

	nodes := x.graph.Search(d.Float32(), k)
	out := make([]MatchCandidate, 0, len(nodes))
	for _, n := range nodes {
		rec, ok := x.pool.Lookup(n.Key)
		if !ok {
			continue
		}
		dist, err := Distance(d, rec.Descriptor)
		if err != nil {
			continue
		}
		out = append(out, MatchCandidate{IdentityKey: n.Key, Distance: dist})
	}
	slices.SortFunc(out, func(a, b MatchCandidate) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return strings.Compare(a.IdentityKey, b.IdentityKey)
	})
	return out
}

// Pairs lists every pair of distinct identities whose reference descriptors
// are within maxDistance of each other, closest pairs first.
func (x *LookalikeIndex) Pairs(maxDistance float64) []LookalikePair {
	seen := make(map[[2]string]bool)
	var pairs []LookalikePair

	for _, rec := range x.pool.records {
		for _, n := range x.Nearest(rec.Descriptor, lookalikeNeighbors+1) {
			if n.IdentityKey == rec.IdentityKey || n.Distance > maxDistance {
				continue
			}
			a, b := rec.IdentityKey, n.IdentityKey
			if b < a {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, LookalikePair{A: a, B: b, Distance: n.Distance})
		}
	}

	slices.SortFunc(pairs, func(p, q LookalikePair) int {
		if c := cmp.Compare(p.Distance, q.Distance); c != 0 {
			return c
		}
		return strings.Compare(p.A+"\x00"+p.B, q.A+"\x00"+q.B)
	})
	return pairs
}
