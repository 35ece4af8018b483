// Package epub opens ZIP-based e-book containers and extracts the core
// metadata and cover image the ingestion pipeline needs. Non-container
// formats (plain PDF, plain text) are not handled here; callers fall
// back to filename-derived metadata for those.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Container is an opened e-book container. Close it when done.
type Container struct {
	zr     *zip.ReadCloser
	opfDir string
	pkg    opfPackage
}

// CoreMetadata holds the fields extracted from the package document.
// Empty fields were absent from the container and must leave existing
// values untouched.
type CoreMetadata struct {
	Title     string
	Language  string
	Summary   string
	ISBN      string
	Publisher string
	Subjects  []string
}

// Open opens the archive at path and parses its package document.
// It fails for anything that is not a well-formed ZIP container with a
// locatable OPF; callers treat the error as "no metadata available".
func Open(path string) (*Container, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open container %q: %w", path, err)
	}

	opfPath, err := readContainerXML(&zr.Reader)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("container descriptor %q: %w", path, err)
	}
	pkg, err := readOPFPackage(&zr.Reader, opfPath)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("package document %q: %w", path, err)
	}

	opfDir := filepath.ToSlash(filepath.Dir(opfPath))
	if opfDir == "." {
		opfDir = ""
	}
	return &Container{zr: zr, opfDir: opfDir, pkg: pkg}, nil
}

// Close releases the underlying archive.
func (c *Container) Close() error {
	return c.zr.Close()
}

// CoreMetadata returns the title, language, description and ISBN-like
// identifier from the package document. Fields not present are left
// empty, never defaulted.
func (c *Container) CoreMetadata() CoreMetadata {
	meta := c.pkg.Metadata
	cm := CoreMetadata{
		Language:  strings.TrimSpace(meta.Language),
		Summary:   strings.TrimSpace(meta.Description),
		Publisher: strings.TrimSpace(meta.Publisher),
		ISBN:      findISBN(meta.Identifiers),
	}
	if len(meta.Titles) > 0 {
		cm.Title = strings.TrimSpace(meta.Titles[0])
	}
	for _, s := range meta.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			cm.Subjects = append(cm.Subjects, s)
		}
	}
	return cm
}

// CoverImage returns the archive entry path of the manifest-declared
// cover image: either an item with the EPUB 3 "cover-image" property or
// the item referenced by the EPUB 2 <meta name="cover"> entry.
func (c *Container) CoverImage() (string, bool) {
	coverItemID := ""
	for _, m := range c.pkg.Metadata.Metas {
		if strings.EqualFold(m.Name, "cover") && m.Content != "" {
			coverItemID = m.Content
			break
		}
	}

	for _, item := range c.pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			return c.resolve(item.Href), true
		}
	}
	if coverItemID != "" {
		for _, item := range c.pkg.Manifest.Items {
			if item.ID == coverItemID {
				return c.resolve(item.Href), true
			}
		}
	}
	return "", false
}

// FirstPageImage walks the spine in reading order, opens the first
// HTML/XHTML content document, and returns the entry path of the first
// <img> it references. Fallback for containers with no declared cover.
func (c *Container) FirstPageImage() (string, bool) {
	byID := make(map[string]opfItem, len(c.pkg.Manifest.Items))
	for _, item := range c.pkg.Manifest.Items {
		byID[item.ID] = item
	}

	for _, ref := range c.pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok || !strings.Contains(item.MediaType, "html") {
			continue
		}
		docPath := c.resolve(item.Href)
		// Only the head of the document is needed to find the image.
		content, err := c.readEntryLimit(docPath, 64*1024)
		if err != nil {
			continue
		}
		imgSrc := findFirstImgSrc(string(content))
		if imgSrc == "" {
			continue
		}

		docDir := filepath.ToSlash(filepath.Dir(docPath))
		if docDir == "." {
			docDir = ""
		}
		var imgPath string
		switch {
		case strings.HasPrefix(imgSrc, "/"):
			imgPath = strings.TrimPrefix(imgSrc, "/")
		case docDir != "":
			imgPath = docDir + "/" + imgSrc
		default:
			imgPath = imgSrc
		}
		imgPath = filepath.ToSlash(filepath.Clean(imgPath))

		if c.entry(imgPath) != nil {
			return imgPath, true
		}
	}
	return "", false
}

// ReadEntry returns the full content of the named archive entry.
func (c *Container) ReadEntry(entryPath string) ([]byte, error) {
	return c.readEntryLimit(entryPath, 0)
}

func (c *Container) readEntryLimit(entryPath string, limit int64) ([]byte, error) {
	f := c.entry(entryPath)
	if f == nil {
		return nil, fmt.Errorf("entry %q not found in container", entryPath)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", entryPath, err)
	}
	defer rc.Close()
	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", entryPath, err)
	}
	return data, nil
}

func (c *Container) entry(name string) *zip.File {
	for _, f := range c.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (c *Container) resolve(href string) string {
	if c.opfDir == "" {
		return href
	}
	return c.opfDir + "/" + href
}

// --- internal XML struct types for OPF/container parsing ---

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfSpine struct {
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

type opfMetadata struct {
	Titles      []string        `xml:"title"`
	Subjects    []string        `xml:"subject"`
	Description string          `xml:"description"`
	Language    string          `xml:"language"`
	Publisher   string          `xml:"publisher"`
	Identifiers []opfIdentifier `xml:"identifier"`
	Metas       []opfMeta       `xml:"meta"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type containerXML struct {
	Rootfile struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

func readContainerXML(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			defer rc.Close()

			var c containerXML
			if err := xml.NewDecoder(rc).Decode(&c); err != nil {
				return "", err
			}
			if c.Rootfile.FullPath == "" {
				return "", fmt.Errorf("no rootfile found in container.xml")
			}
			return c.Rootfile.FullPath, nil
		}
	}
	return "", fmt.Errorf("META-INF/container.xml not found")
}

func readOPFPackage(zr *zip.Reader, opfPath string) (opfPackage, error) {
	for _, f := range zr.File {
		if f.Name == opfPath {
			rc, err := f.Open()
			if err != nil {
				return opfPackage{}, err
			}
			defer rc.Close()

			data, err := io.ReadAll(rc)
			if err != nil {
				return opfPackage{}, err
			}

			var pkg opfPackage
			if err := xml.Unmarshal(data, &pkg); err != nil {
				return opfPackage{}, err
			}
			return pkg, nil
		}
	}
	return opfPackage{}, fmt.Errorf("OPF file %q not found in container", opfPath)
}

// findISBN picks the ISBN-like identifier: an entry whose scheme says
// ISBN, or failing that a digit string that parses as ISBN-13 or ISBN-10.
func findISBN(ids []opfIdentifier) string {
	for _, id := range ids {
		if strings.EqualFold(id.Scheme, "isbn") {
			return strings.TrimSpace(id.Value)
		}
	}
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		v = strings.TrimPrefix(strings.ToLower(v), "urn:isbn:")
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, v)
		if len(digits) == 13 && (strings.HasPrefix(digits, "978") || strings.HasPrefix(digits, "979")) {
			return digits
		}
		if len(digits) == 10 {
			return digits
		}
	}
	return ""
}

// findFirstImgSrc does a simple scan for the first <img … src="…"> in an
// HTML string. Returns the raw src value (not URL-decoded) or "".
func findFirstImgSrc(html string) string {
	lower := strings.ToLower(html)
	idx := strings.Index(lower, "<img")
	if idx == -1 {
		return ""
	}
	tag := html[idx:]
	endIdx := strings.Index(strings.ToLower(tag), ">")
	if endIdx == -1 {
		endIdx = len(tag)
	}
	tag = tag[:endIdx]

	lowerTag := strings.ToLower(tag)
	srcIdx := strings.Index(lowerTag, "src=")
	if srcIdx == -1 {
		return ""
	}
	rest := tag[srcIdx+4:]
	if len(rest) == 0 {
		return ""
	}

	var quote byte
	if rest[0] == '"' || rest[0] == '\'' {
		quote = rest[0]
		rest = rest[1:]
	}

	var endSrc int
	if quote != 0 {
		endSrc = strings.IndexByte(rest, quote)
	} else {
		endSrc = strings.IndexAny(rest, " \t\n\r>")
	}
	if endSrc == -1 {
		endSrc = len(rest)
	}

	src := rest[:endSrc]
	// Strip query string and fragment.
	if i := strings.IndexByte(src, '?'); i != -1 {
		src = src[:i]
	}
	if i := strings.IndexByte(src, '#'); i != -1 {
		src = src[:i]
	}
	return strings.TrimSpace(src)
}
