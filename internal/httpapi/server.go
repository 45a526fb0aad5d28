// Package httpapi exposes the download and analysis services over a JSON
// HTTP API, plus read-only access to the stored artifacts under /storage.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/internal/library"
	"github.com/subhub/youtube-subtitle-hub/internal/llm"
	"github.com/subhub/youtube-subtitle-hub/internal/subtitles"
)

type Server struct {
	tracker   *jobs.Tracker
	store     *jobs.Store
	subtitles *subtitles.Service
	analyzer  *llm.Analyzer
	scanner   *library.Scanner
	storage   config.StorageConfig

	allowedOrigins []string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithAnalyzer(analyzer *llm.Analyzer) Option {
	return func(s *Server) {
		s.analyzer = analyzer
	}
}

func WithLibrary(scanner *library.Scanner) Option {
	return func(s *Server) {
		s.scanner = scanner
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(
	tracker *jobs.Tracker,
	store *jobs.Store,
	subtitleSvc *subtitles.Service,
	storage config.StorageConfig,
	opts ...Option,
) *Server {
	s := &Server{
		tracker:   tracker,
		store:     store,
		subtitles: subtitleSvc,
		storage:   storage,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withCORS(s.mux)
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/videos/download", s.handleVideoDownload)
	s.mux.HandleFunc("/api/videos/status/", s.handleVideoStatus)
	s.mux.HandleFunc("/api/videos/fetch/", s.handleVideoFetch)
	s.mux.HandleFunc("/api/videos/cancel/", s.handleVideoCancel)
	s.mux.HandleFunc("/api/videos/jobs", s.handleVideoJobs)
	s.mux.HandleFunc("/api/videos/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/subtitles/download", s.handleSubtitleDownload)
	s.mux.HandleFunc("/api/subtitles/list", s.handleSubtitleList)
	s.mux.HandleFunc("/api/subtitles/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/subtitles/playlist-progress/", s.handlePlaylistProgress)
	s.mux.HandleFunc("/api/library", s.handleLibrary)
	s.mux.HandleFunc("/api/library/rescan", s.handleLibraryRescan)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/storage/", s.storageHandler())
}

// storageHandler serves stored artifacts read-only. Directory listings are
// disabled.
func (s *Server) storageHandler() http.Handler {
	fileServer := http.StripPrefix("/storage/", http.FileServer(http.Dir(s.storage.Root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if r.URL.Path == "/storage/" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
