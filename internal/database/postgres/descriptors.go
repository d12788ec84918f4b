package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/pgvector/pgvector-go"
)

// DescriptorRepository caches enrollment descriptors in a pgvector column.
type DescriptorRepository struct {
	pool *Pool
}

func NewDescriptorRepository(pool *Pool) *DescriptorRepository {
	return &DescriptorRepository{pool: pool}
}

// Get returns the cached descriptor, nil if not found
func (r *DescriptorRepository) Get(ctx context.Context, contentHash, model string) (*database.StoredDescriptor, error) {
	query := `
		SELECT content_hash, model, descriptor, created_at
		FROM descriptor_cache
		WHERE content_hash = $1 AND model = $2
	`

	var d database.StoredDescriptor
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, contentHash, model).Scan(
		&d.ContentHash,
		&d.Model,
		&vec,
		&d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query descriptor: %w", err)
	}

	d.Descriptor = vec.Slice()
	return &d, nil
}

// Put stores or replaces a descriptor
func (r *DescriptorRepository) Put(ctx context.Context, d database.StoredDescriptor) error {
	if len(d.Descriptor) == 0 {
		return errors.New("descriptor is empty")
	}
	query := `
		INSERT INTO descriptor_cache (content_hash, model, descriptor, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (content_hash, model) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			created_at = EXCLUDED.created_at
	`
	vec := pgvector.NewVector(d.Descriptor)
	if _, err := r.pool.Exec(ctx, query, d.ContentHash, d.Model, vec); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

var _ database.DescriptorCache = (*DescriptorRepository)(nil)
