// Package hash computes content fingerprints for deduplication.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex SHA-256 digest of data. It is the content
// fingerprint stored on records and in document frontmatter.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the fingerprint, used for
// deterministic media file names.
func Short(data []byte, n int) string {
	fp := Fingerprint(data)
	if n > len(fp) {
		n = len(fp)
	}
	return fp[:n]
}
