package validate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patterns(ps ...string) [][]byte {
	out := make([][]byte, len(ps))
	for i, p := range ps {
		out[i] = []byte(strings.ToLower(p))
	}
	return out
}

func TestScanReaderFindsPattern(t *testing.T) {
	pat, hit, err := scanReader(strings.NewReader("abc JAVASCRIPT: def"), patterns("javascript:"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "javascript:", pat)
}

func TestScanReaderCleanInput(t *testing.T) {
	_, hit, err := scanReader(strings.NewReader("a perfectly ordinary book text"), patterns("<script", "eval("))
	require.NoError(t, err)
	assert.False(t, hit)
}

// A pattern straddling the chunk boundary must still be found.
func TestScanReaderChunkBoundary(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{'x'}, scanChunkSize-4))
	buf.WriteString("<SCRipt>alert(1)")

	pat, hit, err := scanReader(&buf, patterns("<script"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "<script", pat)
}

func TestScanReaderNoPatterns(t *testing.T) {
	_, hit, err := scanReader(strings.NewReader("anything"), nil)
	require.NoError(t, err)
	assert.False(t, hit)
}
