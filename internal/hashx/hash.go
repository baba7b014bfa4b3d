// Package hashx computes content digests for deduplication and protocol
// verification. The remote service identifies media by the SHA-1 of the raw
// file bytes; it is a content fingerprint, not a security boundary.
package hashx

import (
	"crypto/sha1"
	"fmt"
	"os"
)

// Size is the digest length in bytes.
const Size = sha1.Size

// SumFile returns the SHA-1 digest of the file's contents. Media files are
// read fully into memory; expected sizes make streaming unnecessary.
func SumFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha1.Sum(data)
	return sum[:], nil
}
