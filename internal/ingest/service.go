// Package ingest turns untrusted book files into library records. It
// sequences validation, content hashing, deduplication, container
// metadata extraction and cover persistence for both HTTP uploads and
// directory scans.
package ingest

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/averlon/folio/internal/lang"
	"github.com/averlon/folio/internal/library"
	"github.com/averlon/folio/internal/validate"
)

// Service runs the ingestion pipeline. Each file is processed
// synchronously to completion; concurrent callers are serialized per
// content digest so identical uploads cannot race past the dedup check.
type Service struct {
	repo      library.BookRepository
	blobs     library.BlobStore
	validator *validate.Validator
	langs     *lang.Normalizer
	booksDir  string
	log       *slog.Logger

	mu          sync.Mutex
	digestLocks map[string]*digestLock
}

type digestLock struct {
	mu   sync.Mutex
	refs int
}

// New wires up an ingestion Service. booksDir is where accepted uploads
// are stored and where scoped temporary files live during processing.
func New(repo library.BookRepository, blobs library.BlobStore, v *validate.Validator, n *lang.Normalizer, booksDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		blobs:       blobs,
		validator:   v,
		langs:       n,
		booksDir:    booksDir,
		log:         logger,
		digestLocks: make(map[string]*digestLock),
	}
}

// SupportedFormats returns the accepted file extensions, sorted.
func (s *Service) SupportedFormats() []string {
	formats := s.validator.SupportedExtensions()
	sort.Strings(formats)
	return formats
}

// CanIngest is a cheap pre-check: the file exists, its extension is
// allowed and its signature matches. No side effects.
func (s *Service) CanIngest(path string) bool {
	return s.validator.CanIngest(path)
}

// lockDigest acquires the per-digest mutex, creating it on first use.
// The returned func releases the mutex and drops the entry once no
// caller holds it.
func (s *Service) lockDigest(digest string) func() {
	s.mu.Lock()
	l, ok := s.digestLocks[digest]
	if !ok {
		l = &digestLock{}
		s.digestLocks[digest] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.digestLocks, digest)
		}
		s.mu.Unlock()
	}
}
