// Package validate enforces the upload-safety policy for incoming book
// files: size bounds, filename sanitation, extension allow-list, MIME
// cross-check, magic-byte signature check, and a heuristic scan for
// embedded active content. Files failing the signature or content check
// are moved to a quarantine directory with an audit log entry.
package validate

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/averlon/folio/internal/sniff"
)

// Rejection reasons surfaced in Outcome.Reason.
const (
	ReasonMissingPath       = "missing file path"
	ReasonNotFound          = "file does not exist"
	ReasonEmptyFile         = "file is empty"
	ReasonTooLarge          = "file exceeds maximum allowed size"
	ReasonUnsafeFilename    = "filename contains unsafe characters"
	ReasonExtensionBlocked  = "file extension is not allowed"
	ReasonInvalidHeader     = "invalid file header"
	ReasonSuspiciousContent = "suspicious content detected"
	ReasonScanTooLarge      = "file exceeds malware scan size limit"
)

// Outcome is the immutable result of validating one candidate file.
type Outcome struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	Size      int64  `json:"size"`
	Extension string `json:"extension,omitempty"`
}

// Scanner is an optional external malware scanner.
type Scanner interface {
	// Scan inspects the file at path and returns a non-nil error when
	// the file is considered malicious.
	Scan(path string) error
}

// Config holds the runtime-configurable validation limits.
type Config struct {
	// MaxSize is the maximum accepted file size in bytes.
	MaxSize int64

	// AllowedExtensions lists the accepted lowercase extensions without
	// the leading dot (e.g. "epub").
	AllowedExtensions []string

	// QuarantineDir is where files failing the signature or content
	// check are moved.
	QuarantineDir string

	// ScanEnabled gates the external malware scan step.
	ScanEnabled bool

	// ScanMaxSize is the largest file the external scanner accepts;
	// larger files are rejected outright when scanning is enabled.
	ScanMaxSize int64

	// Scanner performs the external scan. Ignored unless ScanEnabled.
	Scanner Scanner
}

// Policy holds the fixed allow-lists and tables the validator checks
// against. Injected rather than compiled in so tests can substitute
// smaller fixtures.
type Policy struct {
	// Signatures is the magic-byte table.
	Signatures sniff.Table

	// AllowedMIME is the advisory allow-set of declared content types.
	AllowedMIME []string

	// SuspiciousPatterns are lowercase substrings whose presence
	// quarantines a file.
	SuspiciousPatterns []string

	// ZIPExtensions, PDFExtensions and TextExtensions classify the
	// allowed extensions for the signature step. Extensions in none of
	// the three classes skip the signature check.
	ZIPExtensions  []string
	PDFExtensions  []string
	TextExtensions []string
}

// DefaultPolicy returns the production validation policy.
func DefaultPolicy() Policy {
	return Policy{
		Signatures: sniff.Default(),
		AllowedMIME: []string{
			"application/epub+zip",
			"application/pdf",
			"application/x-mobipocket-ebook",
			"application/vnd.amazon.ebook",
			"application/x-fictionbook+xml",
			"application/xhtml+xml",
			"application/rtf",
			"text/plain",
			"text/html",
			"application/octet-stream",
		},
		SuspiciousPatterns: []string{
			"<script",
			"javascript:",
			"vbscript:",
			"onload=",
			"onerror=",
			"eval(",
			"exec(",
			"system(",
			"../",
			`..\`,
			"file://",
			"ftp://",
			"//localhost",
			"//127.0.0.1",
		},
		ZIPExtensions:  []string{"epub", "cbz"},
		PDFExtensions:  []string{"pdf"},
		TextExtensions: []string{"txt", "html", "htm", "rtf", "fb2"},
	}
}

// Validator checks candidate files against the configured policy. It is
// the only component permitted to quarantine files.
type Validator struct {
	cfg Config
	log *slog.Logger

	signatures  sniff.Table
	allowedExt  map[string]struct{}
	allowedMIME map[string]struct{}
	patterns    [][]byte
	zipExt      map[string]struct{}
	pdfExt      map[string]struct{}
	textExt     map[string]struct{}
}

// New builds a Validator from the given limits and policy tables.
func New(cfg Config, policy Policy, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		cfg:         cfg,
		log:         logger,
		signatures:  policy.Signatures,
		allowedExt:  toSet(cfg.AllowedExtensions),
		allowedMIME: toSet(policy.AllowedMIME),
		zipExt:      toSet(policy.ZIPExtensions),
		pdfExt:      toSet(policy.PDFExtensions),
		textExt:     toSet(policy.TextExtensions),
	}
	for _, p := range policy.SuspiciousPatterns {
		v.patterns = append(v.patterns, []byte(strings.ToLower(p)))
	}
	return v
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = struct{}{}
	}
	return set
}

// SupportedExtensions returns the configured extension allow-list in
// lowercase, without dots.
func (v *Validator) SupportedExtensions() []string {
	out := make([]string, 0, len(v.allowedExt))
	for ext := range v.allowedExt {
		out = append(out, ext)
	}
	return out
}

// Validate runs the ordered policy checks against the file at path,
// short-circuiting on the first failure. claimedName is the filename
// claimed by the uploader (the base of path when empty) and declaredMIME
// the content type claimed by the caller ("" when unknown).
//
// Rejections are reported through the Outcome, never as an error; the
// error return is reserved for I/O failures on the underlying storage.
// The signature and content steps move failing files into quarantine as
// a side effect.
func (v *Validator) Validate(filePath, claimedName, declaredMIME string) (Outcome, error) {
	// 1. Existence.
	if filePath == "" {
		return Outcome{Reason: ReasonMissingPath}, nil
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return Outcome{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("stat %q: %w", filePath, err)
	}

	if claimedName == "" {
		claimedName = filepath.Base(filePath)
	}

	// 2. Size bounds. Zero-byte files get a reason distinct from
	// oversize files; a file exactly at the limit is accepted.
	size := info.Size()
	if size == 0 {
		return Outcome{Reason: ReasonEmptyFile, Size: size}, nil
	}
	if v.cfg.MaxSize > 0 && size > v.cfg.MaxSize {
		return Outcome{Reason: ReasonTooLarge, Size: size}, nil
	}

	// 3. Filename sanitation.
	if SanitizeFilename(claimedName) != claimedName {
		return Outcome{Reason: ReasonUnsafeFilename, Size: size}, nil
	}

	// 4. Extension allow-list.
	ext := Extension(claimedName)
	if _, ok := v.allowedExt[ext]; !ok {
		return Outcome{Reason: ReasonExtensionBlocked, Size: size, Extension: ext}, nil
	}

	// 5. Declared MIME cross-check. Advisory only: an absent or
	// unrecognized declared type falls through to extension-based trust.
	v.adviseMIME(filePath, claimedName, declaredMIME)

	// 6. Signature / text-sanity check. Failure quarantines.
	ok, err := v.checkSignature(filePath, ext)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		v.quarantine(filePath, claimedName, ReasonInvalidHeader)
		return Outcome{Reason: ReasonInvalidHeader, Size: size, Extension: ext}, nil
	}

	// 7. Suspicious-content scan. A hit quarantines. Best-effort
	// heuristic, not a sandboxing guarantee.
	pattern, hit, err := v.scanFile(filePath)
	if err != nil {
		return Outcome{}, err
	}
	if hit {
		v.log.Warn("suspicious content in upload",
			"file", claimedName, "pattern", pattern)
		v.quarantine(filePath, claimedName, ReasonSuspiciousContent)
		return Outcome{Reason: ReasonSuspiciousContent, Size: size, Extension: ext}, nil
	}

	// 8. Optional external malware scan.
	if v.cfg.ScanEnabled && v.cfg.Scanner != nil {
		if v.cfg.ScanMaxSize > 0 && size > v.cfg.ScanMaxSize {
			return Outcome{Reason: ReasonScanTooLarge, Size: size, Extension: ext}, nil
		}
		if scanErr := v.cfg.Scanner.Scan(filePath); scanErr != nil {
			return Outcome{Reason: scanErr.Error(), Size: size, Extension: ext}, nil
		}
	}

	return Outcome{Valid: true, Size: size, Extension: ext}, nil
}

// CanIngest is a cheap pre-check combining existence, extension and
// signature validity. It never quarantines.
func (v *Validator) CanIngest(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return false
	}
	ext := Extension(filepath.Base(filePath))
	if _, ok := v.allowedExt[ext]; !ok {
		return false
	}
	ok, err := v.checkSignature(filePath, ext)
	return err == nil && ok
}

// adviseMIME compares the declared content type against the allow-set
// and a magic-byte detection, logging mismatches at debug level. The
// declared type never rejects on its own as long as the extension is
// allow-listed.
func (v *Validator) adviseMIME(filePath, claimedName, declaredMIME string) {
	if declaredMIME == "" {
		return
	}
	base, _, _ := strings.Cut(declaredMIME, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if _, ok := v.allowedMIME[base]; ok {
		return
	}
	detected := ""
	if head, err := readPrefix(filePath, 3072); err == nil {
		detected = mimetype.Detect(head).String()
	}
	v.log.Debug("declared content type outside allow-set, trusting extension",
		"file", claimedName, "declared", declaredMIME, "detected", detected)
}

// checkSignature verifies the magic bytes for ZIP- and PDF-based
// extensions and runs the text-sanity check for text-like extensions.
// Extensions in neither class pass.
func (v *Validator) checkSignature(filePath, ext string) (bool, error) {
	switch {
	case member(v.zipExt, ext):
		prefix, err := readPrefix(filePath, sniff.PrefixLen)
		if err != nil {
			return false, err
		}
		return v.signatures.Matches(prefix, sniff.FormatZIP), nil
	case member(v.pdfExt, ext):
		prefix, err := readPrefix(filePath, sniff.PrefixLen)
		if err != nil {
			return false, err
		}
		return v.signatures.Matches(prefix, sniff.FormatPDF), nil
	case member(v.textExt, ext):
		return textSane(filePath)
	default:
		return true, nil
	}
}

func member(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// readPrefix returns up to n leading bytes of the file.
func readPrefix(filePath string, n int) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", filePath, err)
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read %q: %w", filePath, err)
	}
	return buf[:read], nil
}

// textSane reports whether the file decodes as text under the expected
// encodings: UTF-16 with a byte-order mark, or NUL-free valid UTF-8.
func textSane(filePath string) (bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false, fmt.Errorf("read %q: %w", filePath, err)
	}
	if len(data) >= 2 {
		le := data[0] == 0xFF && data[1] == 0xFE
		be := data[0] == 0xFE && data[1] == 0xFF
		if le || be {
			return utf16Decodable(data[2:], le), nil
		}
	}
	data = trimUTF8BOM(data)
	for _, b := range data {
		if b == 0 {
			return false, nil
		}
	}
	return utf8.Valid(data), nil
}

func trimUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

func utf16Decodable(data []byte, littleEndian bool) bool {
	if len(data)%2 != 0 {
		return false
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		if littleEndian {
			units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
		} else {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		}
	}
	for _, r := range utf16.Decode(units) {
		if r == utf8.RuneError {
			return false
		}
	}
	return true
}

// SanitizeFilename strips directory components, control characters and
// traversal sequences from name. Validation rejects any name the
// sanitizer would change.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, name)
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// Extension returns the lowercased extension of name without the dot.
// Empty when name has no dot or the dot is the last character.
func Extension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
