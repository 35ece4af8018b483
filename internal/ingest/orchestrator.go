package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/averlon/folio/internal/epub"
	"github.com/averlon/folio/internal/hasher"
	"github.com/averlon/folio/internal/library"
	"github.com/averlon/folio/internal/validate"
)

// CoverSource records where a cover image came from.
type CoverSource string

const (
	CoverNone      CoverSource = "none"
	CoverDeclared  CoverSource = "declared"
	CoverFirstPage CoverSource = "first-page"
)

// IngestFile runs the full ingestion sequence for a single file already
// on disk and returns the identifier of the created record. A rejected
// or failed file yields an error and no record; it never panics, so a
// bad file cannot abort a directory scan.
func (s *Service) IngestFile(path string) (string, error) {
	// Gatekeeper: the same acceptance policy as uploads, including the
	// quarantine side effects for bad signatures and content.
	outcome, err := s.validator.Validate(path, "", "")
	if err != nil {
		return "", fmt.Errorf("validate %q: %w", path, err)
	}
	if !outcome.Valid {
		return "", fmt.Errorf("rejected %q: %s", filepath.Base(path), outcome.Reason)
	}

	digest, size, err := hasher.SumFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %q: %w", path, err)
	}

	book := &library.Book{
		Title:    TitleFromFilename(filepath.Base(path)),
		Path:     path,
		FileHash: digest,
		FileSize: size,
		AddedAt:  time.Now(),
	}

	// Best-effort container extraction. Failures leave the
	// filename-derived record as is; they never abort ingestion.
	coverBytes, coverSource := s.enrich(book)

	saved, err := s.repo.Save(book)
	if err != nil {
		return "", fmt.Errorf("save %q: %w", book.Title, err)
	}

	// Cover persistence needs the identifier assigned on save. Failure
	// here is logged and swallowed; the record simply lacks a cover.
	if len(coverBytes) > 0 {
		blobPath := library.CoverBlobPath(saved.ID)
		if err := s.blobs.Store(coverBytes, blobPath); err != nil {
			s.log.Warn("store cover failed", "book", saved.ID, "error", err)
		} else {
			saved.HasCover = true
			if _, err := s.repo.Update(saved); err != nil {
				s.log.Warn("flag cover failed", "book", saved.ID, "error", err)
			} else {
				s.log.Debug("cover stored", "book", saved.ID, "source", coverSource)
			}
		}
	}

	s.log.Info("book ingested", "book", saved.ID, "title", saved.Title, "hash", digest)
	return saved.ID, nil
}

// enrich overlays container metadata onto the filename-derived record
// and returns any discovered cover image as an explicit intermediate
// value rather than smuggling it through the metadata bag.
func (s *Service) enrich(book *library.Book) ([]byte, CoverSource) {
	if validate.Extension(book.Path) != "epub" {
		return nil, CoverNone
	}
	c, err := epub.Open(book.Path)
	if err != nil {
		s.log.Debug("no container metadata", "path", book.Path, "error", err)
		return nil, CoverNone
	}
	defer c.Close()

	meta := c.CoreMetadata()
	if book.Title == "" && meta.Title != "" {
		book.Title = meta.Title
	}
	if meta.Language != "" {
		if tag, ok := s.langs.Normalize(meta.Language); ok {
			book.Language = tag
		} else {
			s.log.Warn("unrecognized language tag, leaving unset",
				"path", book.Path, "tag", meta.Language)
		}
	}
	if meta.Summary != "" {
		book.Summary = meta.Summary
	}
	if book.ISBN == "" && meta.ISBN != "" {
		book.ISBN = meta.ISBN
	}
	if meta.Publisher != "" || len(meta.Subjects) > 0 {
		if book.Metadata == nil {
			book.Metadata = make(map[string]string)
		}
		if meta.Publisher != "" {
			book.Metadata["publisher"] = meta.Publisher
		}
		if len(meta.Subjects) > 0 {
			book.Metadata["subjects"] = strings.Join(meta.Subjects, ", ")
		}
	}

	entry, source := "", CoverNone
	if declared, ok := c.CoverImage(); ok {
		entry, source = declared, CoverDeclared
	} else if fallback, ok := c.FirstPageImage(); ok {
		entry, source = fallback, CoverFirstPage
	}
	if entry == "" {
		return nil, CoverNone
	}
	data, err := c.ReadEntry(entry)
	if err != nil || len(data) == 0 {
		s.log.Debug("cover entry unreadable", "path", book.Path, "entry", entry)
		return nil, CoverNone
	}
	return data, source
}

// TitleFromFilename derives a provisional title: extension stripped,
// underscores and hyphens turned into spaces, each word title-cased.
func TitleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	words := strings.Fields(base)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
