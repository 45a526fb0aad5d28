package subtitles

import (
	"context"
	"errors"

	"github.com/subhub/youtube-subtitle-hub/internal/persistence"
	"github.com/subhub/youtube-subtitle-hub/internal/prompt"
)

// ErrInvalidRequest marks client-supplied input the service refuses to act
// on; handlers map it to a 400.
var ErrInvalidRequest = errors.New("invalid request")

// DownloadRequest asks for subtitle tracks of one video or a whole
// playlist.
type DownloadRequest struct {
	VideoURL       string          `json:"video_url"`
	Languages      []string        `json:"subtitle_languages"`
	Format         string          `json:"subtitle_format"`
	PreferAutoSubs bool            `json:"prefer_auto_subs"`
	OutputFilename string          `json:"output_filename,omitempty"`
	Prompt         *prompt.Payload `json:"prompt,omitempty"`
}

// DownloadResponse describes one stored subtitle artifact.
type DownloadResponse struct {
	JobID          string   `json:"job_id"`
	SubtitleFormat string   `json:"subtitle_format"`
	Languages      []string `json:"subtitle_languages"`
	SubtitleFile   string   `json:"subtitle_file"`
	PromptFile     string   `json:"prompt_file,omitempty"`
	PromptPreview  string   `json:"prompt_preview,omitempty"`
	VideoURL       string   `json:"video_url"`
	VideoTitle     string   `json:"video_title,omitempty"`
}

// PlaylistDownloadResponse summarizes a finished batch download.
type PlaylistDownloadResponse struct {
	JobID      string             `json:"job_id"`
	Total      int                `json:"total_videos"`
	Completed  int                `json:"completed"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	InProgress int                `json:"in_progress"`
	Status     string             `json:"status"`
	Results    []DownloadResponse `json:"results"`
}

// CacheStore is the persistence surface the service needs for the
// subtitle response cache.
type CacheStore interface {
	GetSubtitleCache(ctx context.Context, cacheKey string) (*persistence.SubtitleCacheEntry, error)
	PutSubtitleCache(ctx context.Context, entry *persistence.SubtitleCacheEntry) error
	DeleteSubtitleCache(ctx context.Context, cacheKey string) error
}
