// Package library defines the core domain types for folio and the
// collaborator interfaces that persistence backends implement.
package library

import (
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by repository lookups when no record matches.
var ErrNotFound = errors.New("book not found")

// ErrDuplicate is returned by BookRepository.Save when a record with the
// same content hash already exists. The sqlite backend enforces this with
// a unique index so that two concurrent ingestions of identical bytes
// cannot both be persisted.
var ErrDuplicate = errors.New("book with identical content already exists")

// Book represents a single library record.
type Book struct {
	// ID is the stable identifier assigned by the repository on save.
	ID string `json:"id"`

	// Title is the display title, either extracted from the container
	// metadata or derived from the filename.
	Title string `json:"title"`

	// Path is the filesystem path of the book file.
	Path string `json:"path"`

	// FileSize is the size of the book file in bytes.
	FileSize int64 `json:"fileSize"`

	// FileHash is the lowercase hex SHA-256 digest of the file content.
	// At most one book exists per hash.
	FileHash string `json:"fileHash"`

	// Language is the normalized BCP 47 tag (e.g. "en-US"), or empty if
	// no recognized language was found.
	Language string `json:"language,omitempty"`

	// Summary is the free-text description from the container metadata.
	Summary string `json:"summary,omitempty"`

	// ISBN is the ISBN-like identifier from the container metadata.
	ISBN string `json:"isbn,omitempty"`

	// HasCover reports whether a cover image is stored for this book.
	HasCover bool `json:"hasCover"`

	// Metadata is a free-form bag for extracted fields without a
	// dedicated column (publisher, subjects, …).
	Metadata map[string]string `json:"metadata,omitempty"`

	// AddedAt is when the book was first ingested.
	AddedAt time.Time `json:"addedAt"`

	// UpdatedAt is when the record was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookRepository is the persistence collaborator consumed by the
// ingestion core.
type BookRepository interface {
	// FindByHash returns the book whose FileHash equals hash, or
	// ErrNotFound.
	FindByHash(hash string) (*Book, error)

	// FindByPath returns the book whose Path equals path, or ErrNotFound.
	// Used by the directory walker to skip files already indexed.
	FindByPath(path string) (*Book, error)

	// Save persists a new book, assigns its ID, and returns the stored
	// record. Returns ErrDuplicate if a book with the same FileHash
	// already exists.
	Save(b *Book) (*Book, error)

	// Update persists changes to an existing book and returns it.
	Update(b *Book) (*Book, error)

	// BookByID returns a single book by its identifier, or ErrNotFound.
	BookByID(id string) (*Book, error)

	// AllBooks returns books ordered by added date descending, with the
	// total count for pagination.
	AllBooks(offset, limit int) ([]Book, int, error)

	// Delete removes the book with the given ID. Returns ErrNotFound if
	// no such book exists.
	Delete(id string) error
}

// BlobStore persists arbitrary byte blobs under relative paths. The
// ingestion core uses it only for cover images.
type BlobStore interface {
	// Store writes data at relPath, creating parent directories as
	// needed and replacing any existing blob.
	Store(data []byte, relPath string) error

	// Open returns a reader for the blob at relPath.
	Open(relPath string) (io.ReadCloser, error)

	// Delete removes the blob at relPath. Deleting a missing blob is
	// not an error.
	Delete(relPath string) error
}

// CoverBlobPath returns the blob-store path for a book's cover image.
func CoverBlobPath(bookID string) string {
	return "books/covers/" + bookID
}
