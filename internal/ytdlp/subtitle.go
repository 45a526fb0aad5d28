package ytdlp

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/subhub/youtube-subtitle-hub/pkg/file"
)

var listSubsColumns = regexp.MustCompile(`\s{2,}`)

// SubtitleRequest describes one subtitle extraction.
type SubtitleRequest struct {
	URL            string
	Languages      []string
	Format         string
	PreferAutoSubs bool
}

// SubtitleTrack is one row of yt-dlp's --list-subs table.
type SubtitleTrack struct {
	Language    string   `json:"language"`
	Formats     []string `json:"formats"`
	IsAutomatic bool     `json:"is_automatic"`
}

// DownloadSubtitles fetches subtitle tracks for a single video into destDir
// and returns the path of the produced file.
func (c *Client) DownloadSubtitles(ctx context.Context, destDir string, req SubtitleRequest) (string, error) {
	writeFlag := "--write-subs"
	if req.PreferAutoSubs {
		writeFlag = "--write-auto-subs"
	}

	args := []string{
		"--skip-download",
		writeFlag,
		"--sub-lang", strings.Join(req.Languages, ","),
		"--convert-subs", req.Format,
		// throttle-friendly flags, mirrors what reduces 429s in practice
		"--extractor-args", "youtube:player_client=default",
		"--sleep-interval", "1",
		"--max-sleep-interval", "3",
		"-P", destDir,
		req.URL,
	}
	started := time.Now()
	if _, err := c.runOutput(ctx, args...); err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(destDir, "*."+req.Format))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}

	// --convert-subs can fail quietly and leave the track under its
	// original extension; fall back to whatever the run produced
	recent, ferr := file.FindRecentAfter(destDir, started)
	if ferr == nil && len(recent) > 0 {
		sort.Strings(recent)
		return recent[0], nil
	}

	return "", &ExecError{
		Kind: ErrKindNotFound,
		Output: fmt.Sprintf(
			"no subtitles produced for languages %s in format %s",
			strings.Join(req.Languages, ","), req.Format),
		Cause: err,
	}
}

// ListSubtitles runs --list-subs and splits the table into automatic and
// manual tracks.
func (c *Client) ListSubtitles(ctx context.Context, url string) (automatic, manual []SubtitleTrack, err error) {
	output, err := c.runOutput(ctx, "--list-subs", url)
	if err != nil {
		return nil, nil, err
	}
	automatic, manual = parseListSubsOutput(output)
	return automatic, manual, nil
}

// PlaylistVideoURLs expands a playlist URL into its member video URLs.
func (c *Client) PlaylistVideoURLs(ctx context.Context, playlistURL string) ([]string, error) {
	output, err := c.runOutput(ctx,
		"--flat-playlist",
		"--print", "url",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=default",
		"--sleep-interval", "1",
		"--max-sleep-interval", "3",
		playlistURL,
	)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

// VideoTitle fetches just the title, used for readable artifact names.
// Failures are non-fatal; callers fall back to the job id.
func (c *Client) VideoTitle(ctx context.Context, url string) string {
	output, err := c.runOutput(ctx, "--print", "title", "--no-warnings", url)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(output)
}

// IsPlaylistURL applies the same heuristic the frontend relies on: a list=
// query parameter or an explicit playlist path.
func IsPlaylistURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "list=") || strings.Contains(lower, "playlist")
}

func parseListSubsOutput(output string) (automatic, manual []SubtitleTrack) {
	section := ""
	skipHeader := false

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		// section markers carry an [info] prefix, check them first
		if strings.Contains(line, "Available automatic subtitles") {
			section = "automatic"
			skipHeader = true
			continue
		}
		if strings.Contains(line, "Available subtitles") && !strings.Contains(line, "automatic") {
			section = "manual"
			skipHeader = true
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		if skipHeader && strings.HasPrefix(strings.ToLower(line), "language") {
			skipHeader = false
			continue
		}
		if skipHeader || section == "" {
			continue
		}

		// rows are "Language Name Formats" with padded columns; the
		// Name column can itself contain single spaces
		cols := listSubsColumns.Split(line, -1)
		track := SubtitleTrack{
			Language:    strings.Fields(cols[0])[0],
			Formats:     make([]string, 0),
			IsAutomatic: section == "automatic",
		}
		if len(cols) > 1 {
			for _, fmtName := range strings.Split(cols[len(cols)-1], ",") {
				if trimmed := strings.TrimSpace(fmtName); trimmed != "" {
					track.Formats = append(track.Formats, trimmed)
				}
			}
		}
		if section == "automatic" {
			automatic = append(automatic, track)
		} else {
			manual = append(manual, track)
		}
	}
	return automatic, manual
}
