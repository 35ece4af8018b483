package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/averlon/folio/internal/library"
	"github.com/averlon/folio/internal/validate"
)

// FileOutcome is the per-file result of a directory scan. Err is nil
// when the file produced a record.
type FileOutcome struct {
	Path   string
	BookID string
	Err    error
}

// IngestDirectory walks root in enumeration order and ingests every
// file with an allowed extension that is not yet indexed. Each file is
// processed independently; a failure is recorded in its outcome and the
// walk continues with the next file. The returned error covers only a
// failure to walk root itself.
func (s *Service) IngestDirectory(root string) ([]FileOutcome, error) {
	formats := s.SupportedFormats()
	var outcomes []FileOutcome

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep walking
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !lo.Contains(formats, validate.Extension(d.Name())) {
			return nil
		}

		// Files already indexed keep their existing records untouched.
		if _, lookupErr := s.repo.FindByPath(path); lookupErr == nil {
			return nil
		} else if !errors.Is(lookupErr, library.ErrNotFound) {
			outcomes = append(outcomes, FileOutcome{Path: path, Err: lookupErr})
			return nil
		}

		id, ingestErr := s.IngestFile(path)
		outcomes = append(outcomes, FileOutcome{Path: path, BookID: id, Err: ingestErr})
		return nil
	})
	if err != nil {
		return outcomes, fmt.Errorf("scan directory %q: %w", root, err)
	}
	return outcomes, nil
}

// IngestedIDs filters a scan's outcomes down to the identifiers of
// successfully created records.
func IngestedIDs(outcomes []FileOutcome) []string {
	return lo.FilterMap(outcomes, func(o FileOutcome, _ int) (string, bool) {
		return o.BookID, o.Err == nil && o.BookID != ""
	})
}
