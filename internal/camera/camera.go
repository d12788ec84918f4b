// Package camera provides frame sources for face capture. A real webcam
// lives in the browser; the portal receives frames over HTTP or reads them
// from disk, so every source here replays already-captured images.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrUnavailable means the source was closed or could not be opened.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrExhausted means the source has no more frames. It ends a capture
	// early; it is not a camera failure.
	ErrExhausted = errors.New("no more frames")
)

// Source yields encoded image frames (JPEG or PNG).
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// IsLive reports whether src captures each frame when Next is called. A
// source may say otherwise with a Live() bool method; without one it is
// taken to be live. Pacing between frames only matters for live sources.
func IsLive(src Source) bool {
	if l, ok := src.(interface{ Live() bool }); ok {
		return l.Live()
	}
	return true
}

// Frames replays an in-memory list of frames.
type Frames struct {
	mu     sync.Mutex
	frames [][]byte
	pos    int
	closed bool
}

func NewFrames(frames ...[]byte) *Frames {
	return &Frames{frames: frames}
}

func (f *Frames) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrUnavailable
	}
	if f.pos >= len(f.frames) {
		return nil, ErrExhausted
	}
	frame := f.frames[f.pos]
	f.pos++
	return frame, nil
}

// Live is false: the frames were captured before the source was built.
func (f *Frames) Live() bool { return false }

// Close releases the frames. Closing twice is a no-op.
func (f *Frames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.frames = nil
	return nil
}

// Len is the number of frames not yet read.
func (f *Frames) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames) - f.pos
}

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// Dir reads frames from the image files of a directory in name order.
type Dir struct {
	mu     sync.Mutex
	paths  []string
	pos    int
	closed bool
}

// OpenDir lists the images in path. A missing or empty directory is
// reported as ErrUnavailable.
func OpenDir(path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnavailable, path)
	}
	slices.Sort(paths)
	return &Dir{paths: paths}, nil
}

func (d *Dir) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrUnavailable
	}
	if d.pos >= len(d.paths) {
		d.mu.Unlock()
		return nil, ErrExhausted
	}
	path := d.paths[d.pos]
	d.pos++
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (d *Dir) Live() bool { return false }

func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
