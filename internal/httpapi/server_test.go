package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/internal/library"
	"github.com/subhub/youtube-subtitle-hub/internal/prompt"
	"github.com/subhub/youtube-subtitle-hub/internal/subtitles"
	"github.com/subhub/youtube-subtitle-hub/internal/ytdlp"
)

type fixture struct {
	server  *Server
	store   *jobs.Store
	tracker *jobs.Tracker
	batches *jobs.Batches
	storage config.StorageConfig
}

func newFixture(t *testing.T, runner jobs.Runner) *fixture {
	t.Helper()

	storage := config.StorageConfig{
		Root:        t.TempDir(),
		SubtitleDir: "subtitles",
		PromptDir:   "prompts",
		VideoDir:    "videos",
	}
	require.NoError(t, storage.EnsureDirs())

	store := jobs.NewStore(10, nil)
	batches := jobs.NewBatches(store)

	if runner == nil {
		runner = jobs.RunnerFunc(func(context.Context, string, jobs.DownloadOptions, jobs.ProgressFunc) (*jobs.Result, error) {
			return &jobs.Result{}, nil
		})
	}
	tracker := jobs.NewTracker(store, runner, time.Minute)
	t.Cleanup(tracker.Close)

	client := ytdlp.NewClient("yt-dlp-not-installed")
	prompts := prompt.NewBuilder("notes on {subtitle_body}", storage.PromptPath())
	subtitleSvc := subtitles.NewService(client, storage, prompts, store, batches, nil, 1)

	server := NewServer(
		tracker,
		store,
		subtitleSvc,
		storage,
		withTestLibrary(storage),
		WithAllowedOrigins([]string{"http://localhost:5173"}),
	)
	return &fixture{
		server:  server,
		store:   store,
		tracker: tracker,
		batches: batches,
		storage: storage,
	}
}

func withTestLibrary(storage config.StorageConfig) Option {
	return WithLibrary(library.NewScanner(storage, library.WithCacheTTL(0)))
}

func TestServer_VideoDownloadAndStatus(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, jobs.RunnerFunc(func(ctx context.Context, _ string, _ jobs.DownloadOptions, onProgress jobs.ProgressFunc) (*jobs.Result, error) {
		onProgress(30, "downloading")
		<-release
		return &jobs.Result{File: "/storage/videos/v.mp4", Filename: "v.mp4", FileSize: 7}, nil
	}))

	body := []byte(`{"video_url":"https://youtu.be/abc","quality":"720p"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/videos/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted struct {
		JobID  string      `json:"job_id"`
		Status jobs.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.JobID)

	req = httptest.NewRequest(http.MethodGet, "/api/videos/status/"+submitted.JobID, nil)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	close(release)
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/videos/status/"+submitted.JobID, nil)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		var got struct {
			Status   jobs.Status `json:"status"`
			FetchURL string      `json:"fetch_url"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Status == jobs.StatusCompleted && got.FetchURL == "/api/videos/fetch/"+submitted.JobID
	}, time.Second, 10*time.Millisecond)
}

func TestServer_VideoDownloadRequiresURL(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/videos/download", bytes.NewReader([]byte(`{"quality":"720p"}`)))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StatusUnknownJob(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/status/missing", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FetchWhileRunningConflicts(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, jobs.RunnerFunc(func(ctx context.Context, _ string, _ jobs.DownloadOptions, _ jobs.ProgressFunc) (*jobs.Result, error) {
		<-release
		return &jobs.Result{}, nil
	}))
	defer close(release)

	job, err := f.tracker.Submit("https://youtu.be/abc", jobs.DownloadOptions{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/fetch/"+job.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_FetchServesArtifact(t *testing.T) {
	var f *fixture
	f = newFixture(t, jobs.RunnerFunc(func(ctx context.Context, _ string, opts jobs.DownloadOptions, _ jobs.ProgressFunc) (*jobs.Result, error) {
		path := filepath.Join(f.storage.VideoPath(), opts.BaseName+".mp4")
		if err := os.WriteFile(path, []byte("video bytes"), 0o644); err != nil {
			return nil, err
		}
		return &jobs.Result{
			File:     f.storage.PublicPath(path),
			Filename: "talk.mp4",
			FileSize: 11,
		}, nil
	}))

	job, err := f.tracker.Submit("https://youtu.be/abc", jobs.DownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	}, time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/fetch/"+job.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "video bytes", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "talk.mp4")
}

func TestServer_FetchUnknownJob(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/fetch/missing", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FailedJobHasNoFetchURL(t *testing.T) {
	f := newFixture(t, jobs.RunnerFunc(func(context.Context, string, jobs.DownloadOptions, jobs.ProgressFunc) (*jobs.Result, error) {
		return nil, jobs.NewDownloadError("network timeout", nil)
	}))

	job, err := f.tracker.Submit("https://youtu.be/abc", jobs.DownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	}, time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/status/"+job.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var got struct {
		Status   jobs.Status `json:"status"`
		Error    string      `json:"error"`
		FetchURL string      `json:"fetch_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, jobs.StatusFailed, got.Status)
	require.Contains(t, got.Error, "network timeout")
	require.Empty(t, got.FetchURL)
}

func TestServer_CancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, jobs.RunnerFunc(func(ctx context.Context, _ string, _ jobs.DownloadOptions, _ jobs.ProgressFunc) (*jobs.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	job, err := f.tracker.Submit("https://youtu.be/abc", jobs.DownloadOptions{})
	require.NoError(t, err)
	<-started

	req := httptest.NewRequest(http.MethodPost, "/api/videos/cancel/"+job.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		got, err := f.tracker.Status(job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestServer_ListJobs(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.tracker.Submit("https://youtu.be/a", jobs.DownloadOptions{})
	require.NoError(t, err)
	_, err = f.tracker.Submit("https://youtu.be/b", jobs.DownloadOptions{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/jobs", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
}

func TestServer_PlaylistProgress(t *testing.T) {
	f := newFixture(t, nil)

	child, err := f.store.Create(jobs.CreateRequest{Kind: jobs.KindSubtitle, URL: "u"})
	require.NoError(t, err)
	_, err = f.store.Update(child.ID, jobs.Update{Status: jobs.StatusPtr(jobs.StatusCompleted)})
	require.NoError(t, err)
	f.batches.Register("batch-1", []string{child.ID})

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles/playlist-progress/batch-1", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Total      int    `json:"total_videos"`
		Completed  int    `json:"completed"`
		Successful int    `json:"successful"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Total)
	require.Equal(t, 1, got.Completed)
	require.Equal(t, 1, got.Successful)
	require.Equal(t, "completed", got.Status)
}

func TestServer_PlaylistProgressAcceptsPost(t *testing.T) {
	f := newFixture(t, nil)

	child, err := f.store.Create(jobs.CreateRequest{Kind: jobs.KindSubtitle, URL: "u"})
	require.NoError(t, err)
	f.batches.Register("batch-2", []string{child.ID})

	req := httptest.NewRequest(http.MethodPost, "/api/subtitles/playlist-progress/batch-2", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SubtitleDownloadRequiresURL(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/subtitles/download", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Contains(t, got["error"], "video_url is required")
}

func TestServer_PlaylistProgressUnknownBatch(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles/playlist-progress/missing", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AnalyzeWithoutProvider(t *testing.T) {
	f := newFixture(t, nil)

	body := []byte(`{"job_id":"x","instructions":"summarize"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/subtitles/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "healthy", got["status"])
}

func TestServer_StorageServesFiles(t *testing.T) {
	f := newFixture(t, nil)

	path := filepath.Join(f.storage.VideoPath(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/storage/videos/clip.mp4", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "clip", rec.Body.String())
}

func TestServer_StorageRefusesDirectoryListing(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/storage/videos/", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORSHeaders(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/videos/download", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Library(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, os.WriteFile(filepath.Join(f.storage.VideoPath(), "a.mp4"), []byte("aaaa"), 0o644))
	subDir := filepath.Join(f.storage.SubtitlePath(), "srt")
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "talk.en.srt"), []byte("bb"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var lib library.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lib))
	require.Len(t, lib.Videos, 1)
	require.Len(t, lib.Subtitles, 1)
	require.Equal(t, "en", lib.Subtitles[0].Language)
	require.Equal(t, "srt", lib.Subtitles[0].Format)
	require.Equal(t, int64(6), lib.TotalSize)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/download", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
