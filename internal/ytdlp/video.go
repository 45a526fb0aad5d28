package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/pkg/file"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

// progressLine matches yt-dlp's "[download]  42.3% of ..." output.
var progressLine = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// VideoRunner downloads a single video through yt-dlp and reports progress.
// It implements jobs.Runner.
type VideoRunner struct {
	client  *Client
	storage config.StorageConfig
}

func NewVideoRunner(client *Client, storage config.StorageConfig) *VideoRunner {
	return &VideoRunner{client: client, storage: storage}
}

func (r *VideoRunner) Run(ctx context.Context, url string, opts jobs.DownloadOptions, onProgress jobs.ProgressFunc) (*jobs.Result, error) {
	tempDir, err := os.MkdirTemp("", "yt_video_")
	if err != nil {
		return nil, jobs.NewDownloadError("create temp dir", err)
	}
	defer os.RemoveAll(tempDir)

	if err := r.download(ctx, tempDir, url, opts, onProgress); err != nil {
		return nil, err
	}

	downloaded, err := file.FindNewest(tempDir, ".part")
	if err != nil || downloaded == "" {
		return nil, jobs.NewDownloadError(
			"no video file produced; the link may be invalid or restricted", err)
	}

	final, err := r.persist(downloaded, opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(final)
	if err != nil {
		return nil, jobs.NewDownloadError("stat downloaded file", err)
	}

	return &jobs.Result{
		File:          r.storage.PublicPath(final),
		Filename:      filepath.Base(final),
		FileSize:      info.Size(),
		FileSizeHuman: humanize.IBytes(uint64(info.Size())),
		FormatNote:    FormatNote(opts.Quality),
	}, nil
}

func (r *VideoRunner) download(ctx context.Context, tempDir, url string, opts jobs.DownloadOptions, onProgress jobs.ProgressFunc) error {
	cmdPath, err := exec.LookPath(r.client.binary)
	if err != nil {
		return jobs.NewDownloadError("yt-dlp executable not found on PATH", err)
	}

	args := []string{
		"-f", FormatSelector(opts.Quality),
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--newline",
		"--progress",
		"-o", filepath.Join(tempDir, "%(title)s.%(ext)s"),
		url,
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return jobs.NewDownloadError("attach stdout", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return jobs.NewDownloadError("start yt-dlp", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var tail []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if percent, ok := parseProgress(line); ok && ctx.Err() == nil {
			// Map 0-100% into the 10-90 band, reserving the edges for
			// setup and finalization.
			mapped := 10 + int(percent*0.8)
			onProgress(mapped, fmt.Sprintf("downloading video... %.1f%%", percent))
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		log.Warn("Reading yt-dlp output: %v", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		output := stderr.String()
		if output == "" {
			output = strings.Join(tail, "\n")
		}
		return jobs.NewDownloadError("yt-dlp exited with an error",
			classifyExecError(output, err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	onProgress(90, "merging and finalizing")
	return nil
}

// persist moves the downloaded file into the video storage dir under a
// name unique to the job.
func (r *VideoRunner) persist(downloaded string, opts jobs.DownloadOptions) (string, error) {
	suffix := filepath.Ext(downloaded)
	if suffix == "" {
		suffix = ".mp4"
	}

	name := file.SanitizeName(opts.OutputFilename)
	if name != "" {
		if !strings.EqualFold(filepath.Ext(name), suffix) {
			name += suffix
		}
	} else {
		name = opts.BaseName + suffix
	}

	target := filepath.Join(r.storage.VideoPath(), name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", jobs.NewDownloadError("create video dir", err)
	}
	if err := moveFile(downloaded, target); err != nil {
		return "", jobs.NewDownloadError("persist video file", err)
	}
	return target, nil
}

func parseProgress(line string) (float64, bool) {
	match := progressLine.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return percent, true
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device temp dirs.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
