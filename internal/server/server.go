// Package server implements the HTTP server and routing for folio.
// The handlers are thin: request shaping only, with the ingestion and
// persistence work delegated to the injected collaborators.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/averlon/folio/internal/ingest"
	"github.com/averlon/folio/internal/library"
)

// Options holds optional configuration for the Server.
type Options struct {
	// MaxUploadSize caps the request body accepted by the upload
	// endpoints, in bytes.
	MaxUploadSize int64

	// ScanDir is the directory scanned by POST /api/scan.
	ScanDir string

	// Logger receives request-level warnings. Defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the HTTP server for the library.
type Server struct {
	router   *mux.Router
	repo     library.BookRepository
	blobs    library.BlobStore
	ingester *ingest.Service
	opts     Options
	log      *slog.Logger
}

// New creates and configures a Server.
func New(repo library.BookRepository, blobs library.BlobStore, ing *ingest.Service, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 100 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:   mux.NewRouter(),
		repo:     repo,
		blobs:    blobs,
		ingester: ing,
		opts:     opts,
		log:      logger,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler, delegating to the mux router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// registerRoutes sets up all endpoint routes.
func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Books listing and single-record access.
	r.HandleFunc("/api/books", s.handleBooks).Methods(http.MethodGet)
	r.HandleFunc("/api/books/{id}", s.handleBook).Methods(http.MethodGet)
	r.HandleFunc("/api/books/{id}", s.handleDeleteBook).Methods(http.MethodDelete)
	r.HandleFunc("/api/books/{id}/file", s.handleDownload).Methods(http.MethodGet)

	// Ingestion endpoints.
	r.HandleFunc("/api/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/upload/validate", s.handleValidateUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodPost)
	r.HandleFunc("/api/formats", s.handleFormats).Methods(http.MethodGet)

	// Cover image endpoint.
	r.HandleFunc("/covers/{id}", s.handleCover).Methods(http.MethodGet)
}
