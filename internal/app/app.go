// Package app assembles the breakdown pipeline from configuration.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Epistemic-Technology/production-breakdown/internal/assembler"
	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/internal/config"
	"github.com/Epistemic-Technology/production-breakdown/internal/documents"
	"github.com/Epistemic-Technology/production-breakdown/internal/export"
	"github.com/Epistemic-Technology/production-breakdown/internal/llm"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/render"
	"github.com/Epistemic-Technology/production-breakdown/internal/storage"
	"github.com/Epistemic-Technology/production-breakdown/internal/uploads"
	"github.com/Epistemic-Technology/production-breakdown/resources"
	"github.com/Epistemic-Technology/production-breakdown/server"
)

// App holds the long-lived collaborators shared by both transports.
type App struct {
	Config   *config.Config
	Service  *breakdown.Service
	Uploads  *uploads.Store
	Exporter *export.DocxExporter
	Health   server.HealthInfo
	sessions *storage.SQLiteSessionStore
}

// New wires the pipeline. A missing API key is not fatal here; generate and
// revise report it as a configuration error.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	store, err := uploads.NewStore(cfg.Server.UploadDir, log)
	if err != nil {
		return nil, err
	}

	extractor, err := documents.NewTextExtractor(cfg.Ingest.ExtractorBackend)
	if err != nil {
		return nil, err
	}

	renderDir := filepath.Join(store.Dir(), "render")
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}
	renderer := render.NewPopplerRenderer(cfg.Ingest.RasterizerBinary, renderDir)
	if !renderer.IsAvailable() {
		log.Warn("Rasterizer %q not found; scanned PDFs will be sent as text only", cfg.Ingest.RasterizerBinary)
	}

	asm := assembler.New(extractor, renderer, assembler.Options{
		ChunkSize:       cfg.Ingest.ChunkSize,
		ChunkOverlap:    cfg.Ingest.ChunkOverlap,
		MinTextChars:    cfg.Ingest.MinTextChars,
		MinCharsPerPage: cfg.Ingest.MinCharsPerPage,
		MaxSampledPages: cfg.Ingest.MaxSampledPages,
		RenderDPI:       cfg.Ingest.RenderDPI,
		RenderQuality:   cfg.Ingest.RenderQuality,
	}, log)

	provider, err := llm.NewSynthesizer(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		return nil, err
	}
	limiter := llm.NewRateLimiter(cfg.LLM.TokensPerSecond, cfg.LLM.BurstTokens, cfg.LLM.MaxRetries)
	synth := llm.NewRateLimitedSynthesizer(provider, limiter, log)
	summarizer := llm.NewMultiPassSummarizer(synth, cfg.Summary.NotesConcurrency,
		cfg.LLM.NotesMaxOutputTokens, cfg.LLM.MaxOutputTokens, log)

	a := &App{
		Config:   cfg,
		Uploads:  store,
		Exporter: export.NewDocxExporter(),
		Health: server.HealthInfo{
			Extractor:           extractor.Name(),
			RasterizerAvailable: renderer.IsAvailable(),
			Provider:            cfg.LLM.Provider,
		},
	}

	var sessions breakdown.SessionStore
	if cfg.Storage.SessionDBPath != "" {
		log.Info("Initializing SQLite session store at: %s", cfg.Storage.SessionDBPath)
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SessionDBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		a.sessions, err = storage.NewSQLiteSessionStore(cfg.Storage.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		sessions = a.sessions
		a.Health.Sessions = true
	}

	if cfg.LLM.APIKey == "" {
		log.Warn("No API key configured for %s; requests will fail until one is set", cfg.LLM.Provider)
	}

	a.Service = breakdown.NewService(asm, synth, summarizer, store, sessions, breakdown.Options{
		MaxFiles:             cfg.Server.MaxFiles,
		MultiPassThreshold:   cfg.Summary.MultiPassThreshold,
		MaxOutputTokens:      cfg.LLM.MaxOutputTokens,
		CredentialConfigured: cfg.LLM.APIKey != "",
	}, log)
	return a, nil
}

// ZoteroCredentials returns the configured Zotero access for remote sources
func (a *App) ZoteroCredentials() documents.ZoteroCredentials {
	return documents.ZoteroCredentials{
		APIKey:    a.Config.Zotero.APIKey,
		LibraryID: a.Config.Zotero.LibraryID,
	}
}

// SessionLoader returns the session store, or nil when sessions are disabled
func (a *App) SessionLoader() resources.SessionLoader {
	if a.sessions == nil {
		return nil
	}
	return a.sessions
}

func (a *App) Close() error {
	if a.sessions != nil {
		return a.sessions.Close()
	}
	return nil
}
