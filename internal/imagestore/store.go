// Package imagestore fetches and commits enrollment photos.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the referenced image does not exist.
var ErrNotFound = errors.New("enrollment image not found")

// Store reads enrollment images by reference (a file name such as
// ana_example_com.jpg). Reads are never cached.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Uploader creates or replaces an enrollment image.
type Uploader interface {
	Put(ctx context.Context, ref string, data []byte, message string) error
}

// ReadWriter is a store that accepts uploads.
type ReadWriter interface {
	Store
	Uploader
}

// FileName derives the enrollment image name for an email address:
// every '@' and '.' becomes '_' and ".jpg" is appended.
func FileName(email string) string {
	safe := strings.NewReplacer("@", "_", ".", "_").Replace(strings.TrimSpace(email))
	return safe + ".jpg"
}

// AddMessage and UpdateMessage are the commit messages used for uploads.
func AddMessage(email string) string {
	return fmt.Sprintf("Add face image for %s", email)
}

func UpdateMessage(email string) string {
	return fmt.Sprintf("Update face image for %s", email)
}

// validRef rejects references that would escape the image directory.
func validRef(ref string) error {
	if ref == "" || strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." {
		return fmt.Errorf("invalid image reference %q", ref)
	}
	return nil
}
