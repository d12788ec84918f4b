package facematch

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolNotReady means the pool was scored before loading finished.
	ErrPoolNotReady = errors.New("enrolled pool is not loaded")
	// ErrPoolSealed means an entry was added after loading finished.
	ErrPoolSealed        = errors.New("enrolled pool is sealed")
	ErrDuplicateIdentity = errors.New("identity already enrolled")
	ErrEmptyIdentityKey  = errors.New("empty identity key")
	ErrEmptyDescriptor   = errors.New("empty descriptor")
)

// EnrollmentRecord is one identity's reference descriptor.
type EnrollmentRecord struct {
	IdentityKey string
	Descriptor  Descriptor
	// Blocked is a load-time snapshot. It is informational only; the
	// authoritative flag is re-read from the directory before any grant.
	Blocked bool
}

// Pool is the set of enrollment records a login session scores against.
// Entries keep insertion order and have unique identity keys. A pool is
// filled by one goroutine and becomes read-only once sealed.
type Pool struct {
	records []EnrollmentRecord
	index   map[string]int
	dim     int
	sealed  bool
}

func NewPool() *Pool {
	return &Pool{index: make(map[string]int)}
}

// Add appends rec. All descriptors in a pool share one dimension.
func (p *Pool) Add(rec EnrollmentRecord) error {
	if p.sealed {
		return ErrPoolSealed
	}
	if rec.IdentityKey == "" {
		return ErrEmptyIdentityKey
	}
	if len(rec.Descriptor) == 0 {
		return fmt.Errorf("%w for %s", ErrEmptyDescriptor, rec.IdentityKey)
	}
	if !rec.Descriptor.Finite() {
		return fmt.Errorf("%w: %s", ErrNonFiniteDescriptor, rec.IdentityKey)
	}
	if _, ok := p.index[rec.IdentityKey]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, rec.IdentityKey)
	}
	if p.dim != 0 && len(rec.Descriptor) != p.dim {
		return fmt.Errorf("%w: %s has %d, pool has %d", ErrDimensionMismatch, rec.IdentityKey, len(rec.Descriptor), p.dim)
	}
	p.dim = len(rec.Descriptor)
	p.index[rec.IdentityKey] = len(p.records)
	p.records = append(p.records, rec)
	return nil
}

// Seal marks loading as complete. Sealing twice is a no-op.
func (p *Pool) Seal() {
	p.sealed = true
}

// Ready reports whether the pool may be scored.
func (p *Pool) Ready() bool {
	return p != nil && p.sealed
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.records)
}

// Dim is the descriptor dimension, 0 for an empty pool.
func (p *Pool) Dim() int {
	return p.dim
}

// Records returns a copy of the entries in insertion order.
func (p *Pool) Records() []EnrollmentRecord {
	out := make([]EnrollmentRecord, len(p.records))
	copy(out, p.records)
	return out
}

func (p *Pool) Lookup(identityKey string) (EnrollmentRecord, bool) {
	i, ok := p.index[identityKey]
	if !ok {
		return EnrollmentRecord{}, false
	}
	return p.records[i], true
}
