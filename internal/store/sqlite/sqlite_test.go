package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/averlon/folio/internal/library"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleBook(n int) *library.Book {
	return &library.Book{
		Title:    fmt.Sprintf("Book %d", n),
		Path:     fmt.Sprintf("/books/book-%d.epub", n),
		FileSize: int64(1000 + n),
		FileHash: fmt.Sprintf("%064d", n),
		Language: "en-US",
		AddedAt:  time.Unix(int64(1700000000+n*60), 0),
	}
}

func TestSaveAndFindByHash(t *testing.T) {
	repo := openTestRepo(t)

	saved, err := repo.Save(sampleBook(1))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("Save did not assign an ID")
	}

	got, err := repo.FindByHash(saved.FileHash)
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if got.ID != saved.ID || got.Title != "Book 1" || got.FileSize != 1001 {
		t.Errorf("FindByHash returned %+v", got)
	}
	if got.Language != "en-US" {
		t.Errorf("language: got %q", got.Language)
	}

	if _, err := repo.FindByHash("missing"); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("FindByHash(missing): got %v, want ErrNotFound", err)
	}
}

func TestSaveDuplicateHash(t *testing.T) {
	repo := openTestRepo(t)

	if _, err := repo.Save(sampleBook(1)); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	dup := sampleBook(1)
	dup.Path = "/books/other-path.epub"
	if _, err := repo.Save(dup); !errors.Is(err, library.ErrDuplicate) {
		t.Errorf("second Save with same hash: got %v, want ErrDuplicate", err)
	}

	if _, total, err := repo.AllBooks(0, 10); err != nil || total != 1 {
		t.Errorf("AllBooks after duplicate: total %d, err %v", total, err)
	}
}

func TestFindByPath(t *testing.T) {
	repo := openTestRepo(t)

	saved, err := repo.Save(sampleBook(2))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.FindByPath(saved.Path)
	if err != nil {
		t.Fatalf("FindByPath: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("FindByPath returned %q, want %q", got.ID, saved.ID)
	}
	if _, err := repo.FindByPath("/books/nope.epub"); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("FindByPath(missing): got %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := openTestRepo(t)

	saved, err := repo.Save(sampleBook(3))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	saved.HasCover = true
	saved.Summary = "now with a summary"
	if _, err := repo.Update(saved); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.BookByID(saved.ID)
	if err != nil {
		t.Fatalf("BookByID: %v", err)
	}
	if !got.HasCover || got.Summary != "now with a summary" {
		t.Errorf("Update not persisted: %+v", got)
	}
}

func TestUpdateMissing(t *testing.T) {
	repo := openTestRepo(t)

	ghost := sampleBook(4)
	ghost.ID = "no-such-id"
	if _, err := repo.Update(ghost); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("Update(missing): got %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := openTestRepo(t)

	saved, err := repo.Save(sampleBook(5))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Delete(saved.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.BookByID(saved.ID); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("BookByID after delete: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete(saved.ID); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("Delete again: got %v, want ErrNotFound", err)
	}
}

func TestAllBooksPagination(t *testing.T) {
	repo := openTestRepo(t)

	for i := 1; i <= 5; i++ {
		if _, err := repo.Save(sampleBook(i)); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	books, total, err := repo.AllBooks(0, 2)
	if err != nil {
		t.Fatalf("AllBooks: %v", err)
	}
	if total != 5 {
		t.Errorf("total: got %d, want 5", total)
	}
	if len(books) != 2 {
		t.Fatalf("page size: got %d, want 2", len(books))
	}
	// Newest first.
	if books[0].Title != "Book 5" || books[1].Title != "Book 4" {
		t.Errorf("order: got %q, %q", books[0].Title, books[1].Title)
	}

	rest, _, err := repo.AllBooks(4, 2)
	if err != nil {
		t.Fatalf("AllBooks offset: %v", err)
	}
	if len(rest) != 1 || rest[0].Title != "Book 1" {
		t.Errorf("last page: got %+v", rest)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	repo := openTestRepo(t)

	b := sampleBook(6)
	b.Metadata = map[string]string{
		"publisher": "Averlon Press",
		"subjects":  "Fiction, Adventure",
	}
	saved, err := repo.Save(b)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.BookByID(saved.ID)
	if err != nil {
		t.Fatalf("BookByID: %v", err)
	}
	if got.Metadata["publisher"] != "Averlon Press" {
		t.Errorf("publisher: got %q", got.Metadata["publisher"])
	}
	if got.Metadata["subjects"] != "Fiction, Adventure" {
		t.Errorf("subjects: got %q", got.Metadata["subjects"])
	}

	plain, err := repo.Save(sampleBook(7))
	if err != nil {
		t.Fatalf("Save plain: %v", err)
	}
	got, err = repo.BookByID(plain.ID)
	if err != nil {
		t.Fatalf("BookByID plain: %v", err)
	}
	if got.Metadata != nil {
		t.Errorf("empty metadata should stay nil, got %v", got.Metadata)
	}
}
