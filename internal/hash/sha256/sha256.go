// Package sha256 derives the hex digests used as idempotency keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// partSeparator keeps ("ab", "c") and ("a", "bc") distinct.
const partSeparator = "\x1f"

// Sum returns the hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumParts hashes the ordered parts joined by a unit separator.
func SumParts(parts ...string) string {
	return Sum([]byte(strings.Join(parts, partSeparator)))
}
