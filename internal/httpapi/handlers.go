package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/internal/subtitles"
	"github.com/subhub/youtube-subtitle-hub/internal/ytdlp"
)

type videoDownloadRequest struct {
	VideoURL       string `json:"video_url"`
	Quality        string `json:"quality"`
	OutputFilename string `json:"output_filename,omitempty"`
}

type videoStatusResponse struct {
	*jobs.Job
	FetchURL string `json:"fetch_url,omitempty"`
}

func (s *Server) handleVideoDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req videoDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}
	if req.Quality == "" {
		req.Quality = "best"
	}

	job, err := s.tracker.Submit(req.VideoURL, jobs.DownloadOptions{
		Quality:        req.Quality,
		OutputFilename: req.OutputFilename,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusView(job))
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := pathTail(r.URL.Path, "/api/videos/status/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := s.tracker.Status(jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(job))
}

// handleVideoFetch streams a completed download artifact. A job that is
// still in flight answers 409 so the client keeps polling.
func (s *Server) handleVideoFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := pathTail(r.URL.Path, "/api/videos/fetch/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := s.tracker.Status(jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("download is not finished yet (status: %s)", job.Status))
		return
	}
	if job.Result == nil || job.Result.File == "" {
		writeError(w, http.StatusNotFound, "download artifact is missing")
		return
	}

	path, err := s.storage.ResolvePublic(job.Result.File)
	if err != nil {
		writeError(w, http.StatusNotFound, "download artifact is missing")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "download artifact is missing")
		return
	}

	filename := job.Result.Filename
	if filename == "" {
		filename = filepath.Base(path)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

func (s *Server) handleVideoCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := pathTail(r.URL.Path, "/api/videos/cancel/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}
	if err := s.tracker.Cancel(jobID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (s *Server) handleVideoJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list := s.store.List()
	views := make([]*videoStatusResponse, 0, len(list))
	for _, job := range list {
		views = append(views, statusView(job))
	}
	writeJSON(w, http.StatusOK, views)
}

func statusView(job *jobs.Job) *videoStatusResponse {
	view := &videoStatusResponse{Job: job}
	if job.Status == jobs.StatusCompleted && job.Result != nil && job.Result.File != "" {
		view.FetchURL = "/api/videos/fetch/" + job.ID
	}
	return view
}

func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	tail = strings.Trim(tail, "/")
	if strings.Contains(tail, "/") {
		return ""
	}
	return tail
}

func writeServiceError(w http.ResponseWriter, err error) {
	var execErr *ytdlp.ExecError
	var downloadErr *jobs.DownloadError

	switch {
	case errors.Is(err, subtitles.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrCapacity):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &execErr):
		writeError(w, execStatus(execErr.Kind), execErr.Error())
	case errors.As(err, &downloadErr):
		writeError(w, http.StatusBadGateway, downloadErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func execStatus(kind ytdlp.ErrKind) int {
	switch kind {
	case ytdlp.ErrKindTooManyRequests:
		return http.StatusTooManyRequests
	case ytdlp.ErrKindForbidden:
		return http.StatusForbidden
	case ytdlp.ErrKindNotFound:
		return http.StatusNotFound
	case ytdlp.ErrKindBinaryMissing:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
