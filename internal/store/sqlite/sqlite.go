// Package sqlite implements the library.BookRepository on a SQLite
// database. The books table carries a unique index on the content hash
// so at most one record can exist per digest, even under concurrent
// ingestion.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/averlon/folio/internal/library"
)

// Repository is a SQLite-backed book repository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// WAL mode for concurrent reads.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	r := &Repository{db: db}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return r, nil
}

// Close releases database resources.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) createSchema() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS books (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    path       TEXT NOT NULL,
    file_size  INTEGER NOT NULL DEFAULT 0,
    file_hash  TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT '',
    summary    TEXT NOT NULL DEFAULT '',
    isbn       TEXT NOT NULL DEFAULT '',
    has_cover  INTEGER NOT NULL DEFAULT 0,
    metadata   TEXT NOT NULL DEFAULT '{}',
    added_at   INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_books_file_hash ON books(file_hash);
CREATE INDEX IF NOT EXISTS idx_books_path ON books(path);
CREATE INDEX IF NOT EXISTS idx_books_added_at ON books(added_at DESC);
`)
	return err
}

// Save inserts a new book, assigning its identifier. A unique-index
// violation on file_hash is reported as library.ErrDuplicate.
func (r *Repository) Save(b *library.Book) (*library.Book, error) {
	stored := *b
	stored.ID = uuid.NewString()
	if stored.AddedAt.IsZero() {
		stored.AddedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()

	metaJSON, err := encodeMetadata(stored.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(`
INSERT INTO books (id, title, path, file_size, file_hash, language, summary, isbn, has_cover, metadata, added_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		stored.ID, stored.Title, stored.Path, stored.FileSize, stored.FileHash,
		stored.Language, stored.Summary, stored.ISBN, boolToInt(stored.HasCover),
		metaJSON, stored.AddedAt.Unix(), stored.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("save book %q: %w", stored.Title, library.ErrDuplicate)
		}
		return nil, fmt.Errorf("save book %q: %w", stored.Title, err)
	}
	return &stored, nil
}

// Update persists changes to an existing book.
func (r *Repository) Update(b *library.Book) (*library.Book, error) {
	stored := *b
	stored.UpdatedAt = time.Now()

	metaJSON, err := encodeMetadata(stored.Metadata)
	if err != nil {
		return nil, err
	}

	res, err := r.db.Exec(`
UPDATE books SET title=?, path=?, file_size=?, language=?, summary=?, isbn=?, has_cover=?, metadata=?, updated_at=?
WHERE id=?`,
		stored.Title, stored.Path, stored.FileSize, stored.Language, stored.Summary,
		stored.ISBN, boolToInt(stored.HasCover), metaJSON, stored.UpdatedAt.Unix(),
		stored.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update book %q: %w", stored.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("update book %q: %w", stored.ID, library.ErrNotFound)
	}
	return &stored, nil
}

// FindByHash returns the book with the given content digest.
func (r *Repository) FindByHash(hash string) (*library.Book, error) {
	return r.queryOne(`WHERE file_hash = ?`, hash)
}

// FindByPath returns the book stored at the given filesystem path.
func (r *Repository) FindByPath(path string) (*library.Book, error) {
	return r.queryOne(`WHERE path = ?`, path)
}

// BookByID returns a single book by its identifier.
func (r *Repository) BookByID(id string) (*library.Book, error) {
	return r.queryOne(`WHERE id = ?`, id)
}

// AllBooks returns books ordered by added date descending, plus the
// total count for pagination.
func (r *Repository) AllBooks(offset, limit int) ([]library.Book, int, error) {
	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	books, err := r.queryBooks(`ORDER BY added_at DESC, LOWER(title) LIMIT ? OFFSET ?`, limit, offset)
	return books, total, err
}

// Delete removes the book with the given identifier.
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete book %q: %w", id, library.ErrNotFound)
	}
	return nil
}

// --- query helpers ---

const bookColumns = `id, title, path, file_size, file_hash, language, summary, isbn, has_cover, metadata, added_at, updated_at`

func (r *Repository) queryOne(clause string, args ...any) (*library.Book, error) {
	books, err := r.queryBooks(clause+` LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, library.ErrNotFound
	}
	return &books[0], nil
}

func (r *Repository) queryBooks(clause string, args ...any) ([]library.Book, error) {
	rows, err := r.db.Query(`SELECT `+bookColumns+` FROM books `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []library.Book
	for rows.Next() {
		var (
			b        library.Book
			hasCover int
			metaJSON string
			added    int64
			updated  int64
		)
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Path, &b.FileSize, &b.FileHash,
			&b.Language, &b.Summary, &b.ISBN, &hasCover, &metaJSON,
			&added, &updated,
		); err != nil {
			return nil, err
		}
		b.HasCover = hasCover != 0
		b.AddedAt = time.Unix(added, 0)
		b.UpdatedAt = time.Unix(updated, 0)
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &b.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %q: %w", b.ID, err)
			}
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// isUniqueViolation matches the driver's constraint error. modernc's
// sqlite exposes it only through the message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
