// Package prompt composes and persists note-taking prompts built from
// downloaded transcripts.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSpeaker = "unknown speaker"
	defaultTopic   = "unspecified topic"
)

// Payload carries the per-request template inputs.
type Payload struct {
	Template          string `json:"template,omitempty"`
	Speaker           string `json:"speaker,omitempty"`
	Topic             string `json:"topic,omitempty"`
	ExtraInstructions string `json:"extra_instructions,omitempty"`
}

type Builder struct {
	defaultTemplate string
	promptDir       string
}

func NewBuilder(defaultTemplate, promptDir string) *Builder {
	return &Builder{
		defaultTemplate: defaultTemplate,
		promptDir:       promptDir,
	}
}

// Build fills the template placeholders {speaker}, {topic} and
// {subtitle_body} and appends any extra instructions.
func (b *Builder) Build(subtitleText string, payload *Payload) string {
	template := b.defaultTemplate
	speaker := defaultSpeaker
	topic := defaultTopic

	if payload != nil {
		if payload.Template != "" {
			template = payload.Template
		}
		if payload.Speaker != "" {
			speaker = payload.Speaker
		}
		if payload.Topic != "" {
			topic = payload.Topic
		}
	}

	replacer := strings.NewReplacer(
		"{speaker}", speaker,
		"{topic}", topic,
		"{subtitle_body}", strings.TrimSpace(subtitleText),
	)
	text := replacer.Replace(template)

	if payload != nil && payload.ExtraInstructions != "" {
		text += "\n\nAdditional hints:\n" + strings.TrimSpace(payload.ExtraInstructions)
	}
	return text
}

// Save writes the prompt text under the prompt dir keyed by job id and
// returns the file path.
func (b *Builder) Save(jobID, text string) (string, error) {
	if err := os.MkdirAll(b.promptDir, 0o755); err != nil {
		return "", fmt.Errorf("create prompt dir: %w", err)
	}
	path := filepath.Join(b.promptDir, jobID+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	return path, nil
}
