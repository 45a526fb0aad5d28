package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Server Configuration:
// - SERVER_ADDR: HTTP listen address (default: :8000)
// - ALLOWED_ORIGINS: comma-separated CORS origins (default: http://localhost:5173,http://127.0.0.1:5173)
// - LOG_LEVEL: debug|info|warn|error (default: info)
//
// Storage Configuration:
// - STORAGE_ROOT: Root directory for downloaded artifacts (default: ./storage)
//
// yt-dlp Configuration:
// - YT_DLP_BINARY: Name or path of the yt-dlp executable (default: yt-dlp)
// - YT_DLP_TIMEOUT: Per-job wall-clock bound in seconds (default: 1800)
// - PLAYLIST_CONCURRENCY: Parallel playlist downloads (default: 2)
//
// Job Configuration:
// - JOB_MAX_ACTIVE: Maximum jobs held in the store (default: 100)
// - JOB_DB_PATH: SQLite path for job records (default: <STORAGE_ROOT>/jobs.db)
// - JOB_RETENTION_HOURS: TTL for terminal jobs and their artifacts (default: 24)
// - JOB_RETENTION_CRON: Sweep schedule (default: @hourly)
//
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name to use (default: gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.2)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	YtDlp   YtDlpConfig   `json:"yt_dlp"`
	Jobs    JobsConfig    `json:"jobs"`
	LLM     LLMConfig     `json:"llm"`
}

type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       string   `json:"log_level"`
}

type StorageConfig struct {
	Root        string `json:"root"`
	SubtitleDir string `json:"subtitle_dir"`
	PromptDir   string `json:"prompt_dir"`
	VideoDir    string `json:"video_dir"`
}

func (c StorageConfig) SubtitlePath() string {
	return filepath.Join(c.Root, c.SubtitleDir)
}

func (c StorageConfig) PromptPath() string {
	return filepath.Join(c.Root, c.PromptDir)
}

func (c StorageConfig) VideoPath() string {
	return filepath.Join(c.Root, c.VideoDir)
}

// PublicPath converts an absolute artifact path into its /storage URL.
func (c StorageConfig) PublicPath(actual string) string {
	rel, err := filepath.Rel(c.Root, actual)
	if err != nil {
		return ""
	}
	return "/storage/" + filepath.ToSlash(rel)
}

// ResolvePublic maps a /storage URL back onto the filesystem, refusing
// paths that escape the root.
func (c StorageConfig) ResolvePublic(public string) (string, error) {
	rel := strings.TrimPrefix(public, "/storage/")
	if rel == public {
		return "", fmt.Errorf("not a storage path: %s", public)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", public)
	}
	return filepath.Join(c.Root, cleaned), nil
}

// EnsureDirs creates the storage tree eagerly so handlers never race on it.
func (c StorageConfig) EnsureDirs() error {
	for _, dir := range []string{c.SubtitlePath(), c.PromptPath(), c.VideoPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return nil
}

type YtDlpConfig struct {
	Binary              string `json:"binary"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	PlaylistConcurrency int    `json:"playlist_concurrency"`
}

type JobsConfig struct {
	MaxActive      int    `json:"max_active"`
	DBPath         string `json:"db_path"`
	RetentionHours int    `json:"retention_hours"`
	RetentionCron  string `json:"retention_cron"`
}

type LLMConfig struct {
	APIKey       string  `json:"api_key"`
	APIURL       string  `json:"api_url"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	Timeout      int     `json:"timeout"`
	SystemPrompt string  `json:"system_prompt"`
}

const defaultSystemPrompt = "You are a multilingual study assistant who distills " +
	"video transcripts into key points, highlights and actionable advice. " +
	"Structure your answers with clear sections, numbering or lists."

const defaultPromptTemplate = "Turn the following talk into detailed, " +
	"easy-to-follow notes. Keep original terminology where needed.\n" +
	"Speaker: {speaker}\n" +
	"Topic: {topic}\n" +
	"Transcript:\n" +
	"{subtitle_body}"

// DefaultPromptTemplate is the note-taking template used when a download
// request does not carry its own.
func DefaultPromptTemplate() string {
	return getEnvString("PROMPT_TEMPLATE", defaultPromptTemplate)
}

// Option is a function type for configuring Config
type Option func(*Config)

// New loads .env (when present) and builds the configuration from the
// environment.
func New(opts ...Option) (*Config, error) {
	_ = godotenv.Load()
	return NewFromEnv(opts...)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	storageRoot := getEnvString("STORAGE_ROOT", "./storage")

	config := &Config{
		Server: ServerConfig{
			Addr:           getEnvString("SERVER_ADDR", ":8000"),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
			LogLevel:       getEnvString("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Root:        storageRoot,
			SubtitleDir: getEnvString("SUBTITLE_DIR_NAME", "subtitles"),
			PromptDir:   getEnvString("PROMPT_DIR_NAME", "prompts"),
			VideoDir:    getEnvString("VIDEO_DIR_NAME", "videos"),
		},
		YtDlp: YtDlpConfig{
			Binary:              getEnvString("YT_DLP_BINARY", "yt-dlp"),
			TimeoutSeconds:      getEnvInt("YT_DLP_TIMEOUT", 1800),
			PlaylistConcurrency: getEnvInt("PLAYLIST_CONCURRENCY", 2),
		},
		Jobs: JobsConfig{
			MaxActive:      getEnvInt("JOB_MAX_ACTIVE", 100),
			DBPath:         getEnvString("JOB_DB_PATH", filepath.Join(storageRoot, "jobs.db")),
			RetentionHours: getEnvInt("JOB_RETENTION_HOURS", 24),
			RetentionCron:  getEnvString("JOB_RETENTION_CRON", "@hourly"),
		},
		LLM: LLMConfig{
			APIKey:       getEnvString("LLM_API_KEY", ""),
			APIURL:       getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			Model:        getEnvString("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:    getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature:  getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:      getEnvInt("LLM_TIMEOUT", 120),
			SystemPrompt: getEnvString("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT is required")
	}
	if c.YtDlp.Binary == "" {
		return fmt.Errorf("YT_DLP_BINARY is required")
	}
	if c.YtDlp.PlaylistConcurrency < 1 {
		return fmt.Errorf("PLAYLIST_CONCURRENCY must be at least 1")
	}
	if c.Jobs.MaxActive < 1 {
		return fmt.Errorf("JOB_MAX_ACTIVE must be at least 1")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}
