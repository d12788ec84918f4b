package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/fingerprint"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"go.uber.org/zap"
)

// Extractor turns an encoded image into the descriptor of its face.
// Implementations return fingerprint.ErrNoFace or fingerprint.ErrBadImage
// for images that do not yield a face; any other error is treated as the
// model being unusable.
type Extractor interface {
	Describe(ctx context.Context, image []byte) (facematch.Descriptor, error)
	Model() string
}

// PoolLoader builds an enrolled pool from directory records.
type PoolLoader struct {
	Images    imagestore.Store
	Extractor Extractor
	// Descriptors is optional. When set, descriptors are looked up by the
	// content hash of the enrollment image before running extraction.
	Descriptors database.DescriptorCache
	Logger      *zap.Logger
}

// LoadOptions controls which records enter the pool.
type LoadOptions struct {
	Kind           directory.IdentityKind
	ExcludeBlocked bool
	// Progress, when set, is called after each user with a face image.
	Progress func(done, total int)
}

// LoadStats summarizes a pool load.
type LoadStats struct {
	Users          int
	Enrolled       int
	NoFaceImage    int
	SkippedBlocked int
	Duplicates     int
	Failed         int
	CacheHits      int
}

// Load describes every eligible user and returns the sealed pool. Per-user
// failures are logged and skipped; an unusable model or a cancelled context
// aborts the load.
func (l *PoolLoader) Load(ctx context.Context, users []directory.UserRecord, opts LoadOptions) (*facematch.Pool, LoadStats, error) {
	log := l.log()
	stats := LoadStats{Users: len(users)}

	var eligible []directory.UserRecord
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		key := u.IdentityKey(opts.Kind)
		switch {
		case !u.HasFace() || key == "":
			stats.NoFaceImage++
			continue
		case opts.ExcludeBlocked && u.Blocked:
			stats.SkippedBlocked++
			continue
		}
		norm := directory.NormalizeKey(opts.Kind, key)
		if seen[norm] {
			stats.Duplicates++
			log.Warn("duplicate identity key in directory, keeping first record",
				zap.String("identity", logger.MaskEmail(key)))
			continue
		}
		seen[norm] = true
		eligible = append(eligible, u)
	}

	pool := facematch.NewPool()
	for i, u := range eligible {
		key := u.IdentityKey(opts.Kind)
		d, hit, err := l.describe(ctx, u.FaceImageFile)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			if fatalExtractError(err) {
				return nil, stats, fmt.Errorf("describe enrollment image of %s: %w", logger.MaskEmail(key), err)
			}
			stats.Failed++
			log.Warn("skipping enrollment image",
				zap.String("identity", logger.MaskEmail(key)),
				zap.String("image", u.FaceImageFile),
				zap.Error(err))
		} else {
			if hit {
				stats.CacheHits++
			}
			rec := facematch.EnrollmentRecord{IdentityKey: key, Descriptor: d, Blocked: u.Blocked}
			if err := pool.Add(rec); err != nil {
				stats.Failed++
				log.Warn("skipping enrollment record",
					zap.String("identity", logger.MaskEmail(key)),
					zap.Error(err))
			} else {
				stats.Enrolled++
			}
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(eligible))
		}
	}

	pool.Seal()
	return pool, stats, nil
}

// describe returns the normalized descriptor of the image at ref and
// whether it came from the descriptor cache.
func (l *PoolLoader) describe(ctx context.Context, ref string) (facematch.Descriptor, bool, error) {
	img, err := l.Images.Fetch(ctx, ref)
	if err != nil {
		return nil, false, err
	}

	model := l.Extractor.Model()
	hash := database.ContentHash(img)
	if l.Descriptors != nil {
		cached, err := l.Descriptors.Get(ctx, hash, model)
		switch {
		case err != nil:
			l.log().Warn("descriptor cache read failed", zap.Error(err))
		case cached != nil:
			return facematch.Normalize(facematch.FromFloat32(cached.Descriptor)), true, nil
		}
	}

	d, err := l.Extractor.Describe(ctx, img)
	if err != nil {
		return nil, false, err
	}
	d = facematch.Normalize(d)

	if l.Descriptors != nil {
		err := l.Descriptors.Put(ctx, database.StoredDescriptor{
			ContentHash: hash,
			Model:       model,
			Descriptor:  d.Float32(),
		})
		if err != nil {
			l.log().Warn("descriptor cache write failed", zap.Error(err))
		}
	}
	return d, false, nil
}

func (l *PoolLoader) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// fatalExtractError reports whether err means no further image can be
// described, as opposed to a problem with one image.
func fatalExtractError(err error) bool {
	return errors.Is(err, fingerprint.ErrModelUnavailable) ||
		errors.Is(err, facematch.ErrDimensionMismatch)
}
