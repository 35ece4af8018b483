// Package hasher computes streaming SHA-256 content digests used as the
// natural key for deduplication.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSize is the copy buffer size; the input is never loaded into
// memory as a whole.
const chunkSize = 64 * 1024

// Sum streams r through SHA-256 and returns the lowercase hex digest
// together with the number of bytes read.
func Sum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", 0, fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SumFile opens the file at path and returns its content digest and size.
func SumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	return Sum(f)
}
