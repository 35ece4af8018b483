package validate

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// scanChunkSize is the window size for the streaming pattern scan.
const scanChunkSize = 64 * 1024

// scanFile searches the file content for the configured suspicious
// patterns, case-insensitively, without loading the file into memory.
// Returns the first matching pattern.
func (v *Validator) scanFile(filePath string) (pattern string, hit bool, err error) {
	if len(v.patterns) == 0 {
		return "", false, nil
	}
	f, err := os.Open(filePath)
	if err != nil {
		return "", false, fmt.Errorf("open %q: %w", filePath, err)
	}
	defer f.Close()
	return scanReader(f, v.patterns)
}

// scanReader runs the chunked substring search. Each window keeps the
// last maxLen-1 bytes of the previous one so patterns spanning a chunk
// boundary are still found. Patterns must be lowercase.
func scanReader(r io.Reader, patterns [][]byte) (string, bool, error) {
	maxLen := 0
	for _, p := range patterns {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	if maxLen == 0 {
		return "", false, nil
	}

	buf := make([]byte, 0, scanChunkSize+maxLen)
	chunk := make([]byte, scanChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, toLowerASCII(chunk[:n])...)
			for _, p := range patterns {
				if bytes.Contains(buf, p) {
					return string(p), true, nil
				}
			}
			// Carry the tail so boundary-spanning matches survive.
			if len(buf) > maxLen-1 {
				copy(buf, buf[len(buf)-(maxLen-1):])
				buf = buf[:maxLen-1]
			}
		}
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("scan content: %w", err)
		}
	}
}

func toLowerASCII(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return out
}
