package persistence

import "time"

// SubtitleCacheEntry records a completed subtitle download so repeated
// requests for the same video are served without calling yt-dlp again.
type SubtitleCacheEntry struct {
	CacheKey      string    `json:"cache_key"`
	JobID         string    `json:"job_id"`
	SubtitleFile  string    `json:"subtitle_file"`
	PromptFile    string    `json:"prompt_file,omitempty"`
	PromptPreview string    `json:"prompt_preview,omitempty"`
	VideoURL      string    `json:"video_url"`
	VideoTitle    string    `json:"video_title,omitempty"`
	DownloadedAt  time.Time `json:"downloaded_at"`
}
