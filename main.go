package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/averlon/folio/internal/config"
	"github.com/averlon/folio/internal/ingest"
	"github.com/averlon/folio/internal/lang"
	"github.com/averlon/folio/internal/server"
	"github.com/averlon/folio/internal/store/blob"
	"github.com/averlon/folio/internal/store/sqlite"
	"github.com/averlon/folio/internal/validate"
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(config.FindConfigFile())
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	for _, dir := range []string{cfg.BooksDir, cfg.DataDir, cfg.QuarantineDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	repo, err := sqlite.Open(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		log.Error("open catalog database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	blobs, err := blob.New(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		log.Error("open blob store", "error", err)
		os.Exit(1)
	}

	validator := validate.New(validate.Config{
		MaxSize:           cfg.MaxUploadSize,
		AllowedExtensions: cfg.Extensions(),
		QuarantineDir:     cfg.QuarantineDir,
		ScanEnabled:       cfg.ScanEnabled,
		ScanMaxSize:       cfg.ScanMaxSize,
	}, validate.DefaultPolicy(), log)

	ingester := ingest.New(repo, blobs, validator, lang.Default(), cfg.BooksDir, log)

	if cfg.ScanOnStart {
		outcomes, err := ingester.IngestDirectory(cfg.BooksDir)
		if err != nil {
			log.Warn("startup scan failed", "error", err)
		} else if len(outcomes) > 0 {
			failed := lo.CountBy(outcomes, func(o ingest.FileOutcome) bool { return o.Err != nil })
			log.Info("startup scan finished",
				"ingested", len(ingest.IngestedIDs(outcomes)), "failed", failed)
		}
	}

	srv := server.New(repo, blobs, ingester, server.Options{
		MaxUploadSize: cfg.MaxUploadSize,
		ScanDir:       cfg.BooksDir,
		Logger:        log,
	})

	log.Info("folio starting", "addr", cfg.ListenAddr, "books_dir", cfg.BooksDir)
	if err := http.ListenAndServe(cfg.ListenAddr, srv); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
