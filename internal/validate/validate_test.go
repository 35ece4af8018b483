package validate

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZIPBytes returns a minimal valid ZIP archive. The entry is
// stored uncompressed so the byte content stays predictable.
func buildZIPBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = f.Write([]byte("application/epub+zip"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newValidator(t *testing.T, cfg Config) (*Validator, string) {
	t.Helper()
	quarantine := t.TempDir()
	cfg.QuarantineDir = quarantine
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 1 << 20
	}
	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = []string{"epub", "pdf", "txt", "html"}
	}
	return New(cfg, DefaultPolicy(), nil), quarantine
}

func TestValidateAcceptsWellFormedEPUB(t *testing.T) {
	v, _ := newValidator(t, Config{})
	path := writeFile(t, t.TempDir(), "book.epub", buildZIPBytes(t))

	out, err := v.Validate(path, "", "")
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Empty(t, out.Reason)
	assert.Equal(t, "epub", out.Extension)
	assert.Positive(t, out.Size)
}

func TestValidateMissingPathAndFile(t *testing.T) {
	v, _ := newValidator(t, Config{})

	out, err := v.Validate("", "", "")
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonMissingPath, out.Reason)

	out, err = v.Validate(filepath.Join(t.TempDir(), "ghost.epub"), "", "")
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonNotFound, out.Reason)
}

func TestValidateSizeBounds(t *testing.T) {
	content := []byte("plain text content")
	v, _ := newValidator(t, Config{MaxSize: int64(len(content))})
	dir := t.TempDir()

	// Zero-byte files get a reason distinct from oversize files.
	empty := writeFile(t, dir, "empty.txt", nil)
	out, err := v.Validate(empty, "", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonEmptyFile, out.Reason)

	big := writeFile(t, dir, "big.txt", append(content, ' '))
	out, err = v.Validate(big, "", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonTooLarge, out.Reason)
	assert.NotEqual(t, ReasonEmptyFile, out.Reason)

	// A file exactly at the limit is accepted.
	exact := writeFile(t, dir, "exact.txt", content)
	out, err = v.Validate(exact, "", "")
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestValidateRejectsUnsafeFilename(t *testing.T) {
	v, _ := newValidator(t, Config{})
	path := writeFile(t, t.TempDir(), "book.epub", buildZIPBytes(t))

	for _, name := range []string{
		"../../etc/passwd.epub",
		"dir/book.epub",
		"book\x00.epub",
		`..\windows.epub`,
	} {
		out, err := v.Validate(path, name, "")
		require.NoError(t, err)
		assert.False(t, out.Valid, "name %q", name)
		assert.Equal(t, ReasonUnsafeFilename, out.Reason, "name %q", name)
	}
}

func TestValidateRejectsBlockedExtension(t *testing.T) {
	v, _ := newValidator(t, Config{})
	dir := t.TempDir()

	for _, name := range []string{"tool.exe", "noext", "trailingdot."} {
		path := writeFile(t, dir, name, []byte("data"))
		out, err := v.Validate(path, "", "")
		require.NoError(t, err)
		assert.False(t, out.Valid, "name %q", name)
		assert.Equal(t, ReasonExtensionBlocked, out.Reason, "name %q", name)
	}
}

func TestValidateDeclaredMIMEIsAdvisory(t *testing.T) {
	// An unrecognized declared type falls through to extension trust;
	// this permissiveness is intentional.
	v, _ := newValidator(t, Config{})
	path := writeFile(t, t.TempDir(), "book.epub", buildZIPBytes(t))

	out, err := v.Validate(path, "", "application/x-msdownload")
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestValidateQuarantinesBadSignature(t *testing.T) {
	v, quarantine := newValidator(t, Config{})
	path := writeFile(t, t.TempDir(), "fake.epub", []byte("this is not a zip archive"))

	out, err := v.Validate(path, "fake.epub", "")
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonInvalidHeader, out.Reason)

	// The file was moved, not copied.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assertQuarantined(t, quarantine, "fake.epub", ReasonInvalidHeader)
}

func TestValidateQuarantinesSuspiciousContent(t *testing.T) {
	v, quarantine := newValidator(t, Config{})
	path := writeFile(t, t.TempDir(), "evil.txt", []byte("hello <script>alert(1)</script> world"))

	out, err := v.Validate(path, "evil.txt", "")
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonSuspiciousContent, out.Reason)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assertQuarantined(t, quarantine, "evil.txt", ReasonSuspiciousContent)
}

// assertQuarantined checks that the quarantine directory holds exactly
// one moved file plus a log entry naming the original file and reason.
func assertQuarantined(t *testing.T, dir, originalName, reason string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var logData []byte
	for _, e := range entries {
		assert.Contains(t, e.Name(), originalName)
		if strings.HasSuffix(e.Name(), ".log") {
			logData, err = os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
		}
	}
	require.NotEmpty(t, logData, "quarantine log entry missing")
	assert.Contains(t, string(logData), originalName)
	assert.Contains(t, string(logData), reason)
}

func TestValidateTextSanity(t *testing.T) {
	v, _ := newValidator(t, Config{})
	dir := t.TempDir()

	nulled := writeFile(t, dir, "binary.txt", []byte{'h', 'i', 0x00, 'x'})
	out, err := v.Validate(nulled, "binary.txt", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidHeader, out.Reason)

	// UTF-16 LE with BOM decodes fine despite its NUL bytes.
	utf16 := writeFile(t, dir, "wide.txt", []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00})
	out, err = v.Validate(utf16, "wide.txt", "")
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

type rejectAllScanner struct{}

func (rejectAllScanner) Scan(string) error { return assert.AnError }

func TestValidateExternalScan(t *testing.T) {
	content := []byte("harmless text")

	v, _ := newValidator(t, Config{
		ScanEnabled: true,
		ScanMaxSize: 4,
		Scanner:     rejectAllScanner{},
	})
	path := writeFile(t, t.TempDir(), "book.txt", content)

	// Above the scanner's ceiling: conservative reject.
	out, err := v.Validate(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonScanTooLarge, out.Reason)

	// Within the ceiling: the scanner's verdict decides.
	v2, _ := newValidator(t, Config{
		ScanEnabled: true,
		ScanMaxSize: 1 << 20,
		Scanner:     rejectAllScanner{},
	})
	out, err = v2.Validate(path, "", "")
	require.NoError(t, err)
	assert.False(t, out.Valid)
}

func TestCanIngest(t *testing.T) {
	v, _ := newValidator(t, Config{})
	dir := t.TempDir()

	good := writeFile(t, dir, "book.epub", buildZIPBytes(t))
	assert.True(t, v.CanIngest(good))

	bad := writeFile(t, dir, "fake.epub", []byte("not a zip"))
	assert.False(t, v.CanIngest(bad))

	blocked := writeFile(t, dir, "tool.exe", []byte("MZ"))
	assert.False(t, v.CanIngest(blocked))

	assert.False(t, v.CanIngest(filepath.Join(dir, "missing.epub")))

	// CanIngest never quarantines.
	_, statErr := os.Stat(bad)
	assert.NoError(t, statErr)
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"book.epub", "book.epub"},
		{"../../etc/passwd", "passwd"},
		{`c:\docs\book.epub`, "book.epub"},
		{"book\x00.epub", "book.epub"},
		{"..", ""},
		{"nested/dir/file.pdf", "file.pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestExtension(t *testing.T) {
	cases := []struct{ in, want string }{
		{"book.EPUB", "epub"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"trailing.", ""},
		{".hidden", "hidden"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Extension(tc.in), "input %q", tc.in)
	}
}
