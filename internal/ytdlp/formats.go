package ytdlp

import "fmt"

var qualityHeights = map[string]int{
	"2160p": 2160,
	"1440p": 1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
	"240p":  240,
	"144p":  144,
}

// FormatSelector builds the yt-dlp -f expression for a quality label.
// Unknown labels and "best" fall back to the best available streams.
func FormatSelector(quality string) string {
	height, ok := qualityHeights[quality]
	if !ok {
		return "bv*+ba/b"
	}
	return fmt.Sprintf(
		"bv*[height<=%d][ext=mp4]+ba[ext=m4a]/bv*[height<=%d]+ba/b[height<=%d]",
		height, height, height)
}

// FormatNote describes the quality target for the job result.
func FormatNote(quality string) string {
	if _, ok := qualityHeights[quality]; !ok {
		return "best available quality"
	}
	return "target quality: " + quality
}
