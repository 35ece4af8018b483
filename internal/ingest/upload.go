package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/averlon/folio/internal/hasher"
	"github.com/averlon/folio/internal/library"
	"github.com/averlon/folio/internal/validate"
)

// Status classifies the outcome of an upload.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusValidationFailed Status = "VALIDATION_FAILED"
	StatusDuplicate        Status = "DUPLICATE"
	StatusProcessingFailed Status = "PROCESSING_FAILED"
	StatusError            Status = "ERROR"
)

// UploadResult is the caller-visible outcome of processing one upload.
type UploadResult struct {
	Status   Status `json:"status"`
	BookID   string `json:"bookId,omitempty"`
	FileHash string `json:"fileHash,omitempty"`
	FileSize int64  `json:"fileSize"`
	Message  string `json:"message,omitempty"`
}

// ProcessUpload drains the incoming stream into a scoped temporary
// file, validates and hashes fresh reads of it, checks for duplicates
// by digest, and hands the file to the ingestion sequence. The
// temporary file is removed on every exit path.
func (s *Service) ProcessUpload(r io.Reader, filename, contentType string) UploadResult {
	tmp, err := os.CreateTemp(s.booksDir, ".upload-*.tmp")
	if err != nil {
		return UploadResult{Status: StatusError, Message: fmt.Sprintf("create temp file: %v", err)}
	}
	tmpPath := tmp.Name()
	// Cleanup must run regardless of outcome. It is a no-op when the
	// file was renamed into the library or moved to quarantine.
	defer func() { _ = os.Remove(tmpPath) }()

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return UploadResult{Status: StatusError, Message: fmt.Sprintf("store upload: %v", err)}
	}

	outcome, err := s.validator.Validate(tmpPath, filename, contentType)
	if err != nil {
		return UploadResult{Status: StatusError, FileSize: size, Message: err.Error()}
	}
	if !outcome.Valid {
		return UploadResult{Status: StatusValidationFailed, FileSize: outcome.Size, Message: outcome.Reason}
	}

	digest, _, err := hasher.SumFile(tmpPath)
	if err != nil {
		return UploadResult{Status: StatusError, FileSize: size, Message: err.Error()}
	}

	// Serialize check-then-insert per digest; the repository's unique
	// hash index backstops ingestions racing from other paths.
	unlock := s.lockDigest(digest)
	defer unlock()

	existing, err := s.repo.FindByHash(digest)
	switch {
	case err == nil:
		return UploadResult{Status: StatusDuplicate, BookID: existing.ID, FileHash: digest, FileSize: size}
	case !errors.Is(err, library.ErrNotFound):
		return UploadResult{Status: StatusError, FileHash: digest, FileSize: size, Message: err.Error()}
	}

	destPath, err := s.claimLibraryPath(filename, digest)
	if err != nil {
		return UploadResult{Status: StatusError, FileHash: digest, FileSize: size, Message: err.Error()}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return UploadResult{Status: StatusError, FileHash: digest, FileSize: size,
			Message: fmt.Sprintf("move into library: %v", err)}
	}

	id, err := s.IngestFile(destPath)
	if err != nil {
		_ = os.Remove(destPath)
		if errors.Is(err, library.ErrDuplicate) {
			// Lost a race against another ingestion path; the unique
			// index caught it.
			return UploadResult{Status: StatusDuplicate, FileHash: digest, FileSize: size}
		}
		s.log.Warn("upload processing failed", "file", filename, "error", err)
		return UploadResult{Status: StatusProcessingFailed, FileHash: digest, FileSize: size, Message: err.Error()}
	}

	return UploadResult{Status: StatusSuccess, BookID: id, FileHash: digest, FileSize: size}
}

// ValidateUpload runs only the validation step against the stream,
// without ingesting. Quarantine side effects still apply.
func (s *Service) ValidateUpload(r io.Reader, filename, contentType string) (validate.Outcome, error) {
	tmp, err := os.CreateTemp(s.booksDir, ".upload-*.tmp")
	if err != nil {
		return validate.Outcome{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return validate.Outcome{}, fmt.Errorf("store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return validate.Outcome{}, fmt.Errorf("close temp file: %w", err)
	}
	return s.validator.Validate(tmpPath, filename, contentType)
}

// claimLibraryPath picks the destination path for an accepted upload,
// de-colliding same-named files with a short digest suffix.
func (s *Service) claimLibraryPath(filename, digest string) (string, error) {
	base := validate.SanitizeFilename(filename)
	if base == "" {
		return "", fmt.Errorf("unusable filename %q", filename)
	}
	dest := filepath.Join(s.booksDir, base)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest, nil
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dest = filepath.Join(s.booksDir, fmt.Sprintf("%s-%s%s", stem, digest[:8], ext))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("file %q already exists in the library", filepath.Base(dest))
	}
	return dest, nil
}
