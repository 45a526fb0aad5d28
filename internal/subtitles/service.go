// Package subtitles downloads YouTube subtitle tracks through yt-dlp,
// caches the results and prepares note-taking prompts from them.
package subtitles

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/internal/persistence"
	"github.com/subhub/youtube-subtitle-hub/internal/prompt"
	"github.com/subhub/youtube-subtitle-hub/internal/ytdlp"
	"github.com/subhub/youtube-subtitle-hub/pkg/file"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

const promptPreviewLimit = 1000

var (
	illegalNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars     = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

type Service struct {
	client      *ytdlp.Client
	storage     config.StorageConfig
	prompts     *prompt.Builder
	store       *jobs.Store
	batches     *jobs.Batches
	cache       CacheStore
	concurrency int
}

func NewService(
	client *ytdlp.Client,
	storage config.StorageConfig,
	prompts *prompt.Builder,
	store *jobs.Store,
	batches *jobs.Batches,
	cache CacheStore,
	concurrency int,
) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		client:      client,
		storage:     storage,
		prompts:     prompts,
		store:       store,
		batches:     batches,
		cache:       cache,
		concurrency: concurrency,
	}
}

// Download fetches subtitles for a single video, or for every member of a
// playlist URL. Playlist downloads block until the batch finishes; callers
// poll PlaylistProgress from a separate request to watch it move.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*DownloadResponse, *PlaylistDownloadResponse, error) {
	if err := validateRequest(&req); err != nil {
		return nil, nil, err
	}

	if ytdlp.IsPlaylistURL(req.VideoURL) {
		playlist, err := s.downloadPlaylist(ctx, req)
		return nil, playlist, err
	}

	single, err := s.downloadSingle(ctx, req)
	return single, nil, err
}

// ListTracks returns the automatic and manual subtitle tracks yt-dlp
// reports for the video.
func (s *Service) ListTracks(ctx context.Context, videoURL string) (automatic, manual []ytdlp.SubtitleTrack, err error) {
	return s.client.ListSubtitles(ctx, videoURL)
}

// PlaylistProgress exposes the aggregate over a playlist batch.
func (s *Service) PlaylistProgress(batchID string) (*jobs.BatchProgress, error) {
	return s.batches.Aggregate(batchID)
}

// LoadSubtitleText resolves a stored transcript either by its public
// /storage path or by searching for a job-id keyed file.
func (s *Service) LoadSubtitleText(jobID, subtitleFile string) (string, error) {
	path, err := s.resolveSubtitlePath(jobID, subtitleFile)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read subtitle file: %w", err)
	}
	return string(data), nil
}

func (s *Service) downloadSingle(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	if cached := s.fromCache(ctx, req); cached != nil {
		return cached, nil
	}

	jobID := uuid.NewString()
	tempDir, err := os.MkdirTemp("", "yt_subs_")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	videoTitle := s.client.VideoTitle(ctx, req.VideoURL)

	downloaded, err := s.client.DownloadSubtitles(ctx, tempDir, ytdlp.SubtitleRequest{
		URL:            req.VideoURL,
		Languages:      req.Languages,
		Format:         req.Format,
		PreferAutoSubs: req.PreferAutoSubs,
	})
	if err != nil {
		return nil, err
	}

	finalPath, err := s.persistSubtitle(jobID, downloaded, req, videoTitle)
	if err != nil {
		return nil, err
	}

	response := &DownloadResponse{
		JobID:          jobID,
		SubtitleFormat: req.Format,
		Languages:      req.Languages,
		SubtitleFile:   s.storage.PublicPath(finalPath),
		VideoURL:       req.VideoURL,
		VideoTitle:     videoTitle,
	}

	if req.Prompt != nil {
		data, err := os.ReadFile(finalPath)
		if err != nil {
			return nil, fmt.Errorf("read subtitle for prompt: %w", err)
		}
		promptText := s.prompts.Build(string(data), req.Prompt)
		promptPath, err := s.prompts.Save(jobID, promptText)
		if err != nil {
			return nil, err
		}
		response.PromptFile = s.storage.PublicPath(promptPath)
		response.PromptPreview = truncate(promptText, promptPreviewLimit)
	}

	s.updateCache(ctx, req, response)
	return response, nil
}

// fromCache returns the cached response when both the entry and its file
// still exist.
func (s *Service) fromCache(ctx context.Context, req DownloadRequest) *DownloadResponse {
	if s.cache == nil {
		return nil
	}
	key := cacheKey(req)
	entry, err := s.cache.GetSubtitleCache(ctx, key)
	if err != nil {
		log.Warn("Subtitle cache lookup failed: %v", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	path, err := s.storage.ResolvePublic(entry.SubtitleFile)
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		// stale entry, the artifact is gone
		if err := s.cache.DeleteSubtitleCache(ctx, key); err != nil {
			log.Warn("Failed to drop stale cache entry: %v", err)
		}
		return nil
	}

	return &DownloadResponse{
		JobID:          entry.JobID,
		SubtitleFormat: req.Format,
		Languages:      req.Languages,
		SubtitleFile:   entry.SubtitleFile,
		PromptFile:     entry.PromptFile,
		PromptPreview:  entry.PromptPreview,
		VideoURL:       entry.VideoURL,
		VideoTitle:     entry.VideoTitle,
	}
}

func (s *Service) updateCache(ctx context.Context, req DownloadRequest, response *DownloadResponse) {
	if s.cache == nil {
		return
	}
	err := s.cache.PutSubtitleCache(ctx, &persistence.SubtitleCacheEntry{
		CacheKey:      cacheKey(req),
		JobID:         response.JobID,
		SubtitleFile:  response.SubtitleFile,
		PromptFile:    response.PromptFile,
		PromptPreview: response.PromptPreview,
		VideoURL:      response.VideoURL,
		VideoTitle:    response.VideoTitle,
		DownloadedAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Warn("Failed to update subtitle cache: %v", err)
	}
}

// persistSubtitle moves the downloaded track into the per-format subtitle
// directory under a readable, collision-free name.
func (s *Service) persistSubtitle(jobID, downloaded string, req DownloadRequest, videoTitle string) (string, error) {
	var outputName string
	switch {
	case req.OutputFilename != "":
		base := file.SanitizeName(req.OutputFilename)
		outputName = file.ReplaceExt(base, req.Format)
	case videoTitle != "":
		outputName = fmt.Sprintf("%s_%s.%s",
			sanitizeTitle(videoTitle), randomSuffix(), req.Format)
	default:
		outputName = fmt.Sprintf("%s.%s", jobID, req.Format)
	}

	formatDir := filepath.Join(s.storage.SubtitlePath(), strings.ToLower(req.Format))
	if err := os.MkdirAll(formatDir, 0o755); err != nil {
		return "", fmt.Errorf("create subtitle dir: %w", err)
	}
	finalPath := filepath.Join(formatDir, outputName)
	if err := os.Rename(downloaded, finalPath); err != nil {
		// temp dirs may sit on another filesystem
		data, readErr := os.ReadFile(downloaded)
		if readErr != nil {
			return "", fmt.Errorf("persist subtitle: %w", err)
		}
		if writeErr := os.WriteFile(finalPath, data, 0o644); writeErr != nil {
			return "", fmt.Errorf("persist subtitle: %w", writeErr)
		}
	}
	return finalPath, nil
}

func (s *Service) resolveSubtitlePath(jobID, subtitleFile string) (string, error) {
	if subtitleFile != "" {
		path, err := s.storage.ResolvePublic(subtitleFile)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", jobs.ErrNotFound
		}
		return path, nil
	}
	if jobID != "" {
		pattern := filepath.Join(s.storage.SubtitlePath(), "*", jobID+".*")
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			return "", jobs.ErrNotFound
		}
		sort.Strings(matches)
		return matches[0], nil
	}
	return "", fmt.Errorf("either job_id or subtitle_file is required")
}

func validateRequest(req *DownloadRequest) error {
	if strings.TrimSpace(req.VideoURL) == "" {
		return fmt.Errorf("%w: video_url is required", ErrInvalidRequest)
	}
	clean := make([]string, 0, len(req.Languages))
	for _, lang := range req.Languages {
		if trimmed := strings.TrimSpace(lang); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		clean = []string{"en"}
	}
	req.Languages = clean
	if req.Format == "" {
		req.Format = "srt"
	}
	return nil
}

// cacheKey is the normalized URL plus the request parameters that change
// the artifact.
func cacheKey(req DownloadRequest) string {
	languages := make([]string, len(req.Languages))
	copy(languages, req.Languages)
	sort.Strings(languages)
	return fmt.Sprintf("%s|%s|%s|%t",
		normalizeVideoURL(req.VideoURL),
		req.Format,
		strings.Join(languages, ","),
		req.PreferAutoSubs)
}

// normalizeVideoURL reduces a YouTube link to its canonical watch URL so
// playlist-decorated links share cache entries with plain ones.
func normalizeVideoURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(parsed.Host)
	if strings.Contains(host, "youtu.be") {
		videoID := strings.TrimPrefix(parsed.Path, "/")
		if videoID != "" {
			return "https://www.youtube.com/watch?v=" + videoID
		}
	}
	if strings.Contains(host, "youtube.com") {
		videoID := parsed.Query().Get("v")
		if videoID == "" {
			parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
			if len(parts) >= 2 && parts[0] == "watch" {
				videoID = parts[1]
			}
		}
		if videoID != "" {
			return "https://www.youtube.com/watch?v=" + videoID
		}
	}

	if v := parsed.Query().Get("v"); v != "" {
		return fmt.Sprintf("%s://%s%s?v=%s", parsed.Scheme, parsed.Host, parsed.Path, v)
	}
	return fmt.Sprintf("%s://%s%s", parsed.Scheme, parsed.Host, parsed.Path)
}

func sanitizeTitle(title string) string {
	title = illegalNameChars.ReplaceAllString(title, "_")
	title = controlChars.ReplaceAllString(title, "")
	title = strings.Trim(title, " .")
	if len(title) > 200 {
		title = title[:200]
	}
	if title == "" {
		title = "video"
	}
	return title
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
