package ytdlp

import (
	"fmt"
	"strings"
)

type ErrKind int

const (
	// ErrKindInvalid covers generic non-zero exits.
	ErrKindInvalid ErrKind = iota
	// ErrKindBinaryMissing means the yt-dlp executable is not on PATH.
	ErrKindBinaryMissing
	// ErrKindTooManyRequests maps YouTube's 429 throttling.
	ErrKindTooManyRequests
	// ErrKindForbidden maps 403 rejections.
	ErrKindForbidden
	// ErrKindNotFound covers missing videos or subtitle tracks.
	ErrKindNotFound
)

// ExecError reports a failed yt-dlp invocation along with the tool output
// that explains it.
type ExecError struct {
	Kind   ErrKind
	Output string
	Cause  error
}

func (e *ExecError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 500 {
		out = out[:500]
	}
	switch e.Kind {
	case ErrKindBinaryMissing:
		return fmt.Sprintf("yt-dlp executable not found: %s", out)
	case ErrKindTooManyRequests:
		return "YouTube returned 429 (too many requests); retry later or configure cookies"
	case ErrKindForbidden:
		return "YouTube denied access (403 Forbidden)"
	case ErrKindNotFound:
		return fmt.Sprintf("video or subtitles not found: %s", out)
	default:
		return fmt.Sprintf("yt-dlp failed: %s", out)
	}
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

// classifyExecError buckets yt-dlp output into error kinds the HTTP layer
// can map onto status codes.
func classifyExecError(output string, cause error) *ExecError {
	lower := strings.ToLower(output)
	kind := ErrKindInvalid
	switch {
	case strings.Contains(output, "429") || strings.Contains(lower, "too many requests"):
		kind = ErrKindTooManyRequests
	case strings.Contains(output, "403") || strings.Contains(lower, "forbidden"):
		kind = ErrKindForbidden
	case strings.Contains(output, "404") || strings.Contains(lower, "not found") ||
		strings.Contains(lower, "no subtitles"):
		kind = ErrKindNotFound
	}
	return &ExecError{Kind: kind, Output: output, Cause: cause}
}
