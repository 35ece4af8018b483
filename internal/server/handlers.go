package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/averlon/folio/internal/ingest"
	"github.com/averlon/folio/internal/library"
)

// handleHealth responds 200 OK for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// parsePagination extracts ?offset= and ?limit= with defaults.
func parsePagination(r *http.Request) (offset, limit int) {
	limit = 50
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return offset, limit
}

// handleBooks serves the paginated book list as JSON.
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	books, total, err := s.repo.AllBooks(offset, limit)
	if err != nil {
		s.log.Error("list books", "error", err)
		http.Error(w, "repository error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books": books,
		"total": total,
	})
}

// handleBook serves a single book record.
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	bk, err := s.repo.BookByID(mux.Vars(r)["id"])
	if errors.Is(err, library.ErrNotFound) {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "repository error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bk)
}

// handleDeleteBook removes the record, its file and its cover blob.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bk, err := s.repo.BookByID(id)
	if errors.Is(err, library.ErrNotFound) {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "repository error", http.StatusInternalServerError)
		return
	}
	if err := s.repo.Delete(id); err != nil {
		http.Error(w, "delete failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := os.Remove(bk.Path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("remove book file", "path", bk.Path, "error", err)
	}
	if err := s.blobs.Delete(library.CoverBlobPath(id)); err != nil {
		s.log.Warn("remove cover blob", "book", id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDownload streams the book file.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	bk, err := s.repo.BookByID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	f, err := os.Open(bk.Path)
	if err != nil {
		http.Error(w, "file unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(bk.Path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(bk.Path)+`"`)
	http.ServeContent(w, r, filepath.Base(bk.Path), time.Time{}, f)
}

// handleUpload accepts a multipart/form-data POST with a single file
// field named "file" and runs the full upload pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.openUploadFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	result := s.ingester.ProcessUpload(file, header.Filename, header.Header.Get("Content-Type"))
	writeJSON(w, statusCode(result.Status), result)
}

// handleValidateUpload runs only the validation step and reports the
// structured outcome without ingesting.
func (s *Server) handleValidateUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.openUploadFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	outcome, err := s.ingester.ValidateUpload(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		s.log.Error("validate upload", "file", header.Filename, "error", err)
		http.Error(w, "validation error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// openUploadFile parses the multipart form and returns the "file" part.
func (s *Server) openUploadFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "request too large or malformed: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing 'file' field in form: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	return file, header, true
}

// statusCode maps pipeline outcomes to HTTP statuses.
func statusCode(st ingest.Status) int {
	switch st {
	case ingest.StatusSuccess:
		return http.StatusCreated
	case ingest.StatusDuplicate:
		return http.StatusConflict
	case ingest.StatusValidationFailed, ingest.StatusProcessingFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleScan triggers a books-directory scan and reports the per-file
// outcomes.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.ingester.IngestDirectory(s.opts.ScanDir)
	if err != nil {
		s.log.Error("directory scan", "dir", s.opts.ScanDir, "error", err)
		http.Error(w, "scan failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	type outcomeJSON struct {
		Path   string `json:"path"`
		BookID string `json:"bookId,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	results := lo.Map(outcomes, func(o ingest.FileOutcome, _ int) outcomeJSON {
		j := outcomeJSON{Path: o.Path, BookID: o.BookID}
		if o.Err != nil {
			j.Error = o.Err.Error()
		}
		return j
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ingested": ingest.IngestedIDs(outcomes),
		"results":  results,
	})
}

// handleFormats lists the accepted file extensions.
func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"formats": s.ingester.SupportedFormats()})
}

// handleCover serves the stored cover image for a book.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rc, err := s.blobs.Open(library.CoverBlobPath(id))
	if err != nil {
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		http.Error(w, "cover unavailable", http.StatusInternalServerError)
		return
	}
	// Covers are stored without an extension; sniff the type.
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
