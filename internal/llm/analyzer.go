package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// AnalysisRequest asks for structured notes over a transcript. The
// override lets a caller point one request at a different provider without
// reconfiguring the server.
type AnalysisRequest struct {
	SubtitleText string
	Instructions string
	Override     Override
}

// AnalysisResult carries the assistant output plus metadata about how it
// was produced.
type AnalysisResult struct {
	AssistantMessage string `json:"assistant_message"`
	ModelUsed        string `json:"model_used"`
	SourceLanguage   string `json:"source_language,omitempty"`
}

// Analyzer turns transcripts into notes through a chat-completion
// provider.
type Analyzer struct {
	base         Config
	systemPrompt string
}

func NewAnalyzer(base Config, systemPrompt string) *Analyzer {
	return &Analyzer{base: base, systemPrompt: systemPrompt}
}

// Analyze performs a blocking completion and returns the full message.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	client, cfg, err := a.prepare(req)
	if err != nil {
		return nil, err
	}

	opts := NewChatCompletionOptions().
		WithSystemPrompt(a.systemPrompt).
		WithTemperature(cfg.Temperature)

	response, err := client.ChatCompletion(ctx, a.messages(req), opts)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("LLM returned no content")
	}

	modelUsed := response.Model
	if modelUsed == "" {
		modelUsed = cfg.Model
	}

	return &AnalysisResult{
		AssistantMessage: response.Choices[0].Message.Content,
		ModelUsed:        modelUsed,
		SourceLanguage:   DetectLanguage(req.SubtitleText),
	}, nil
}

// AnalyzeStream streams content deltas through emit and returns the model
// in use.
func (a *Analyzer) AnalyzeStream(ctx context.Context, req AnalysisRequest, emit func(delta string) error) (string, error) {
	client, cfg, err := a.prepare(req)
	if err != nil {
		return "", err
	}

	opts := NewChatCompletionOptions().
		WithSystemPrompt(a.systemPrompt).
		WithTemperature(cfg.Temperature)

	if err := client.StreamChatCompletion(ctx, a.messages(req), opts, emit); err != nil {
		return cfg.Model, err
	}
	return cfg.Model, nil
}

// ModelFor reports which model a request would run on after overrides.
func (a *Analyzer) ModelFor(req AnalysisRequest) string {
	return a.base.Apply(req.Override).Model
}

func (a *Analyzer) prepare(req AnalysisRequest) (*Client, Config, error) {
	cfg := a.base.Apply(req.Override)
	if cfg.APIKey == "" {
		return nil, cfg, fmt.Errorf("an API key is required for the selected provider")
	}
	client, err := NewClient(&cfg)
	if err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}

func (a *Analyzer) messages(req AnalysisRequest) []Message {
	content := fmt.Sprintf(
		"%s\n\nThe full transcript follows; cite its key points in your answer:\n%s",
		strings.TrimSpace(req.Instructions),
		strings.TrimSpace(req.SubtitleText),
	)
	return []Message{{Role: "user", Content: content}}
}

// DetectLanguage guesses the transcript language; empty when detection is
// unreliable.
func DetectLanguage(text string) string {
	sample := text
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	info := whatlanggo.Detect(sample)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.String()
}
