package hasher

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumKnownVector(t *testing.T) {
	digest, n, err := Sum(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
}

func TestSumDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("folio"), 100_000) // larger than one chunk

	first, n1, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)
	second, n2, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, n1, n2)
	assert.Equal(t, int64(len(data)), n1)
}

func TestSumDistinguishesContent(t *testing.T) {
	a, _, err := Sum(strings.NewReader("content a"))
	require.NoError(t, err)
	b, _, err := Sum(strings.NewReader("content b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSumEmptyInput(t *testing.T) {
	digest, n, err := Sum(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	// SHA-256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digest)
}

func TestSumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	digest, size, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
}

func TestSumFileMissing(t *testing.T) {
	_, _, err := SumFile(filepath.Join(t.TempDir(), "nope.epub"))
	assert.Error(t, err)
}
