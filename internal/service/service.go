// Package service wires the configuration, stores, download services and
// HTTP server into one runnable application.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/httpapi"
	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/internal/library"
	"github.com/subhub/youtube-subtitle-hub/internal/llm"
	"github.com/subhub/youtube-subtitle-hub/internal/persistence"
	"github.com/subhub/youtube-subtitle-hub/internal/prompt"
	"github.com/subhub/youtube-subtitle-hub/internal/subtitles"
	"github.com/subhub/youtube-subtitle-hub/internal/ytdlp"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

const shutdownGrace = 10 * time.Second

type App struct {
	cfg     *config.Config
	sqlite  *persistence.SQLiteStore
	store   *jobs.Store
	batches *jobs.Batches
	tracker *jobs.Tracker
	server  *httpapi.Server
	cron    *cron.Cron
}

// New builds the full application graph from the configuration.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Storage.EnsureDirs(); err != nil {
		return nil, err
	}

	sqlite, err := persistence.NewSQLiteStore(cfg.Jobs.DBPath)
	if err != nil {
		return nil, err
	}

	store := jobs.NewStore(cfg.Jobs.MaxActive, sqlite)
	batches := jobs.NewBatches(store)

	client := ytdlp.NewClient(cfg.YtDlp.Binary)
	runner := ytdlp.NewVideoRunner(client, cfg.Storage)
	tracker := jobs.NewTracker(store, runner,
		time.Duration(cfg.YtDlp.TimeoutSeconds)*time.Second)

	prompts := prompt.NewBuilder(config.DefaultPromptTemplate(), cfg.Storage.PromptPath())
	subtitleSvc := subtitles.NewService(
		client,
		cfg.Storage,
		prompts,
		store,
		batches,
		sqlite,
		cfg.YtDlp.PlaylistConcurrency,
	)

	analyzer := llm.NewAnalyzer(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, cfg.LLM.SystemPrompt)

	server := httpapi.NewServer(
		tracker,
		store,
		subtitleSvc,
		cfg.Storage,
		httpapi.WithAnalyzer(analyzer),
		httpapi.WithLibrary(library.NewScanner(cfg.Storage)),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	app := &App{
		cfg:     cfg,
		sqlite:  sqlite,
		store:   store,
		batches: batches,
		tracker: tracker,
		server:  server,
		cron:    cron.New(),
	}
	if err := app.scheduleRetention(); err != nil {
		sqlite.Close()
		return nil, err
	}
	return app, nil
}

// Run serves HTTP until the context is cancelled, then shuts everything
// down in dependency order.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", a.cfg.Server.Addr)
		serveErr <- a.server.ListenAndServe(a.cfg.Server.Addr)
	}()

	select {
	case err := <-serveErr:
		a.close()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	a.close()
	return err
}

func (a *App) close() {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
	a.tracker.Close()
	if err := a.sqlite.Close(); err != nil {
		log.Warn("Failed to close job database: %v", err)
	}
}
