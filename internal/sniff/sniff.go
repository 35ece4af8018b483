// Package sniff recognizes container formats from leading file bytes
// ("magic numbers"), independent of the filename extension.
package sniff

import "bytes"

// Format identifiers returned by Table.Detect.
const (
	FormatZIP         = "zip"
	FormatPDF         = "pdf"
	FormatTextUTF8    = "text-utf8"
	FormatTextUTF16LE = "text-utf16le"
	FormatTextUTF16BE = "text-utf16be"
)

// MinPrefix is the minimum number of leading bytes required for a
// determinate signature match.
const MinPrefix = 4

// PrefixLen is the recommended number of leading bytes callers should
// read before sniffing.
const PrefixLen = 8

// Signature is a single magic-number entry.
type Signature struct {
	// Format is the identifier reported on a match (e.g. FormatZIP).
	Format string

	// Magic is the byte sequence expected at the start of the file.
	Magic []byte
}

// Table is an ordered list of signatures. Earlier entries win.
type Table []Signature

// Default returns the signature table for the formats the library
// accepts: ZIP-based e-book containers, PDF, and BOM-marked text.
func Default() Table {
	return Table{
		{Format: FormatZIP, Magic: []byte{'P', 'K', 0x03, 0x04}},
		{Format: FormatPDF, Magic: []byte{'%', 'P', 'D', 'F'}},
		{Format: FormatTextUTF8, Magic: []byte{0xEF, 0xBB, 0xBF}},
		{Format: FormatTextUTF16LE, Magic: []byte{0xFF, 0xFE}},
		{Format: FormatTextUTF16BE, Magic: []byte{0xFE, 0xFF}},
	}
}

// Detect returns the format whose signature matches the given prefix.
// ok is false when nothing matches or the prefix is too short to decide
// (indeterminate); callers treat both as a failed check.
func (t Table) Detect(prefix []byte) (format string, ok bool) {
	if len(prefix) < MinPrefix {
		return "", false
	}
	for _, sig := range t {
		if bytes.HasPrefix(prefix, sig.Magic) {
			return sig.Format, true
		}
	}
	return "", false
}

// Matches reports whether the prefix carries the signature of the given
// format. A prefix shorter than the signature is indeterminate and does
// not match.
func (t Table) Matches(prefix []byte, format string) bool {
	for _, sig := range t {
		if sig.Format == format {
			if len(prefix) >= len(sig.Magic) && bytes.HasPrefix(prefix, sig.Magic) {
				return true
			}
		}
	}
	return false
}
