// Package ytdlp wraps the external yt-dlp executable for video, subtitle
// and playlist extraction.
package ytdlp

import (
	"context"
	"os/exec"
	"strings"
)

type Client struct {
	binary string
}

func NewClient(binary string) *Client {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Client{binary: binary}
}

// runOutput executes yt-dlp with the given args and returns its stdout.
// Failures are classified into ExecError kinds from the combined output.
func (c *Client) runOutput(ctx context.Context, args ...string) (string, error) {
	cmdPath, err := exec.LookPath(c.binary)
	if err != nil {
		return "", &ExecError{Kind: ErrKindBinaryMissing, Output: c.binary, Cause: err}
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), ctx.Err()
		}
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		return stdout.String(), classifyExecError(output, err)
	}
	return stdout.String(), nil
}
