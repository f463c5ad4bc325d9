package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: Provider backend, "openrouter" or "ollama" (default: openrouter)
// - LLM_API_KEY: API key for the LLM provider (required for openrouter)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (optional, auto-selected when empty)
// - LLM_FALLBACK_MODEL: Model to resubmit to after a content policy refusal
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Translation Configuration:
// - TARGET_LANG: Target language tag, BCP 47 (default: id)
// - SOURCE_LANG: Source language tag (optional, detected when empty)
// - BATCH_SIZE: Lines per request (default: 25)
// - CONTEXT_LINES: Rolling context lines carried between batches (default: 3)
// - PROMPT_STYLE: Prompt instruction set, "standard" or "anime" (default: standard)
//
// Retry Configuration:
// - RETRY_MAX: Retry budget per batch (default: 5)
// - RETRY_INITIAL_DELAY: First backoff delay in seconds (default: 1.0)
// - RETRY_MAX_DELAY: Backoff cap in seconds (default: 60.0)
//
// System Configuration:
// - DATA_DIR: Directory for session state and history (default: /app/data)
// - WATCH_DIRS: Colon-separated directories scanned in watch mode
// - CRON_EXPR: Watch mode schedule (default: 0 0 * * *)

type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Translate TranslateConfig `json:"translate"`
	Retry     RetryConfig     `json:"retry"`
	System    SystemConfig    `json:"system"`
}

// LLMConfig holds the configuration for the model backend.
type LLMConfig struct {
	Provider      string `json:"provider"`
	APIKey        string `json:"api_key"`
	APIURL        string `json:"api_url"`
	Model         string `json:"model"`
	FallbackModel string `json:"fallback_model"`
	Timeout       int    `json:"timeout"`
	SiteURL       string `json:"site_url"`
	AppName       string `json:"app_name"`
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	SourceLanguage language.Tag `json:"source_language"`
	BatchSize      int          `json:"batch_size"`
	ContextLines   int          `json:"context_lines"`
	PromptStyle    string       `json:"prompt_style"`
}

type RetryConfig struct {
	MaxRetries   int     `json:"max_retries"`
	InitialDelay float64 `json:"initial_delay"`
	MaxDelay     float64 `json:"max_delay"`
}

// SystemConfig holds state paths and the watch mode schedule.
type SystemConfig struct {
	DataDir   string   `json:"data_dir"`
	WatchDirs []string `json:"watch_dirs"`
	CronExpr  string   `json:"cron_expr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	provider := getEnvString("LLM_PROVIDER", "openrouter")
	apiURLDefault := "https://openrouter.ai/api/v1"
	if provider == "ollama" {
		apiURLDefault = "http://localhost:11434"
	}

	config := &Config{
		LLM: LLMConfig{
			Provider:      provider,
			APIKey:        getEnvString("LLM_API_KEY", ""),
			APIURL:        getEnvString("LLM_API_URL", apiURLDefault),
			Model:         getEnvString("LLM_MODEL", ""),
			FallbackModel: getEnvString("LLM_FALLBACK_MODEL", ""),
			Timeout:       getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:       getEnvString("LLM_SITE_URL", ""),
			AppName:       getEnvString("LLM_APP_NAME", ""),
		},
		Translate: TranslateConfig{
			TargetLanguage: getEnvLanguage("TARGET_LANG", language.Indonesian),
			SourceLanguage: getEnvLanguage("SOURCE_LANG", language.Und),
			BatchSize:      getEnvInt("BATCH_SIZE", 25),
			ContextLines:   getEnvInt("CONTEXT_LINES", 3),
			PromptStyle:    getEnvString("PROMPT_STYLE", "standard"),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvInt("RETRY_MAX", 5),
			InitialDelay: getEnvFloat("RETRY_INITIAL_DELAY", 1.0),
			MaxDelay:     getEnvFloat("RETRY_MAX_DELAY", 60.0),
		},
		System: SystemConfig{
			DataDir:   getEnvString("DATA_DIR", "/app/data"),
			WatchDirs: getEnvStringList("WATCH_DIRS"),
			CronExpr:  getEnvString("CRON_EXPR", "0 0 * * *"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DBPath is where the translation history database lives.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "subauto.db")
}

// StateDir is where resumable session state lives.
func (c *Config) StateDir() string {
	return c.System.DataDir
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openrouter":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for the openrouter provider")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Translate.TargetLanguage == language.Und {
		return fmt.Errorf("TARGET_LANG is required")
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

// getEnvLanguage parses a BCP 47 tag from the environment, falling back to
// the default on absence or parse failure.
func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}

// getEnvStringList splits a colon-separated environment value.
func getEnvStringList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ":")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}
