// Package digest fingerprints source text so a file can be checked for
// changes between analysis and patching.
package digest

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Bytes returns the BLAKE3 hash of data as a hex string.
func Bytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}
