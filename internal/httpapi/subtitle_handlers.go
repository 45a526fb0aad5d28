package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/subhub/youtube-subtitle-hub/internal/llm"
	"github.com/subhub/youtube-subtitle-hub/internal/subtitles"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

func (s *Server) handleSubtitleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req subtitles.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	single, playlist, err := s.subtitles.Download(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if playlist != nil {
		writeJSON(w, http.StatusOK, playlist)
		return
	}
	writeJSON(w, http.StatusOK, single)
}

type subtitleListRequest struct {
	VideoURL string `json:"video_url"`
}

func (s *Server) handleSubtitleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req subtitleListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	automatic, manual, err := s.subtitles.ListTracks(r.Context(), req.VideoURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_url":           req.VideoURL,
		"automatic_subtitles": automatic,
		"manual_subtitles":    manual,
	})
}

// handlePlaylistProgress answers GET and POST; the SPA polls it with POST.
func (s *Server) handlePlaylistProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	batchID := pathTail(r.URL.Path, "/api/subtitles/playlist-progress/")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch id")
		return
	}

	progress, err := s.subtitles.PlaylistProgress(batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type analyzeRequest struct {
	SubtitleText string  `json:"subtitle_text,omitempty"`
	JobID        string  `json:"job_id,omitempty"`
	SubtitleFile string  `json:"subtitle_file,omitempty"`
	Instructions string  `json:"instructions"`
	Stream       bool    `json:"stream,omitempty"`
	APIKey       string  `json:"api_key,omitempty"`
	BaseURL      string  `json:"base_url,omitempty"`
	Model        string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// handleAnalyze feeds a stored transcript through the chat-completion
// provider. With stream=true the assistant tokens are relayed as plain
// text chunks as they arrive.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.analyzer == nil {
		writeError(w, http.StatusNotImplemented, "analysis provider is not configured")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	text := req.SubtitleText
	if text == "" {
		if req.JobID == "" && req.SubtitleFile == "" {
			writeError(w, http.StatusBadRequest, "subtitle_text, job_id or subtitle_file is required")
			return
		}
		loaded, err := s.subtitles.LoadSubtitleText(req.JobID, req.SubtitleFile)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		text = loaded
	}

	analysisReq := llm.AnalysisRequest{
		SubtitleText: text,
		Instructions: req.Instructions,
		Override: llm.Override{
			APIKey:      req.APIKey,
			BaseURL:     req.BaseURL,
			Model:       req.Model,
			Temperature: req.Temperature,
		},
	}

	if req.Stream {
		s.streamAnalysis(w, r, analysisReq)
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), analysisReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) streamAnalysis(w http.ResponseWriter, r *http.Request, req llm.AnalysisRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-LLM-Model", s.analyzer.ModelFor(req))

	_, err := s.analyzer.AnalyzeStream(r.Context(), req, func(delta string) error {
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already on the wire once the first delta flushed.
		log.Warn("Streaming analysis aborted: %v", err)
	}
}
