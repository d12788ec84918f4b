package database

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentHash returns the hex BLAKE3-256 digest of data, used to key cached
// descriptors by image content rather than by file name.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
