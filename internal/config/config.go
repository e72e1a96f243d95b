// Package config loads the cardflow configuration from a TOML file with
// environment-variable overrides for secrets and deploy-time knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory configuration.
type Paths struct {
	DataDir   string   `toml:"data_dir"`   // snapshot database location
	InboxDirs []string `toml:"inbox_dirs"` // watched for new card images
}

// Database selects and configures the snapshot backend.
type Database struct {
	Backend string `toml:"backend"` // "sqlite" (default) or "postgres"
	DSN     string `toml:"dsn"`     // postgres only
}

// Pipeline tunes the scheduler and worker pool.
type Pipeline struct {
	Concurrency       int `toml:"concurrency"`
	MaxOutstanding    int `toml:"max_outstanding"`
	StartsPerWindow   int `toml:"starts_per_window"`
	RateWindowMillis  int `toml:"rate_window_ms"`
	MaxAttempts       int `toml:"max_attempts"`
	BackoffBaseMillis int `toml:"backoff_base_ms"`
	StageTimeoutSecs  int `toml:"stage_timeout_seconds"`
}

// LLM configures the chat-completions provider shared by parser and
// composer.
type LLM struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	TimeoutSecs int     `toml:"timeout_seconds"`
}

// OCR configures the text extractors.
type OCR struct {
	VisionEndpoint    string   `toml:"vision_endpoint"`
	VisionAPIKey      string   `toml:"vision_api_key"`
	TesseractFallback bool     `toml:"tesseract_fallback"`
	TesseractLangs    []string `toml:"tesseract_langs"`
	TessdataDir       string   `toml:"tessdata_dir"`
}

// Mail configures the delivery provider.
type Mail struct {
	APIKey      string `toml:"api_key"`
	Endpoint    string `toml:"endpoint"`
	FromAddress string `toml:"from_address"`
}

// Email sets composition defaults.
type Email struct {
	Tone          string `toml:"tone"`     // professional | friendly | casual
	Language      string `toml:"language"` // ja | en
	SenderName    string `toml:"sender_name"`
	SenderCompany string `toml:"sender_company"`
	CustomMessage string `toml:"custom_message"`
}

// Logging sets the root logger behavior.
type Logging struct {
	Level  string `toml:"level"`  // debug | info | warn | error
	Format string `toml:"format"` // text | json
}

// Config is the full application configuration.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Database Database `toml:"database"`
	Pipeline Pipeline `toml:"pipeline"`
	LLM      LLM      `toml:"llm"`
	OCR      OCR      `toml:"ocr"`
	Mail     Mail     `toml:"mail"`
	Email    Email    `toml:"email"`
	Logging  Logging  `toml:"logging"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Paths:    Paths{DataDir: "./data"},
		Database: Database{Backend: "sqlite"},
		Pipeline: Pipeline{
			Concurrency:       3,
			MaxOutstanding:    100,
			StartsPerWindow:   5,
			RateWindowMillis:  1000,
			MaxAttempts:       3,
			BackoffBaseMillis: 2000,
			StageTimeoutSecs:  60,
		},
		LLM:     LLM{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", TimeoutSecs: 45},
		Email:   Email{Tone: "professional", Language: "ja"},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies env
// overrides. A missing file is fine; everything then comes from defaults and
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv pulls secrets and common overrides from the environment, which
// wins over the file.
func (c *Config) applyEnv() {
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.OCR.VisionAPIKey = getEnv("VISION_API_KEY", c.OCR.VisionAPIKey)
	c.OCR.VisionEndpoint = getEnv("VISION_ENDPOINT", c.OCR.VisionEndpoint)
	c.Mail.APIKey = getEnv("MAIL_API_KEY", c.Mail.APIKey)
	c.Mail.Endpoint = getEnv("MAIL_ENDPOINT", c.Mail.Endpoint)
	c.Mail.FromAddress = getEnv("MAIL_FROM", c.Mail.FromAddress)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Paths.DataDir = getEnv("CARDFLOW_DATA_DIR", c.Paths.DataDir)
	c.Logging.Level = getEnv("CARDFLOW_LOG_LEVEL", c.Logging.Level)
	c.Pipeline.Concurrency = getEnvAsInt("CARDFLOW_CONCURRENCY", c.Pipeline.Concurrency)
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.Database.Backend != "sqlite" && c.Database.Backend != "postgres" {
		return fmt.Errorf("database.backend must be sqlite or postgres, got %q", c.Database.Backend)
	}
	if c.Database.Backend == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn (or DB_URL) is required for the postgres backend")
	}
	if c.OCR.VisionEndpoint == "" && !c.OCR.TesseractFallback {
		return errors.New("no text extractor configured: set ocr.vision_endpoint or ocr.tesseract_fallback")
	}
	if c.Mail.Endpoint == "" {
		return errors.New("mail.endpoint is required")
	}
	if c.Mail.FromAddress == "" {
		return errors.New("mail.from_address is required")
	}
	return nil
}

// StageTimeout returns the per-provider-call timeout.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSecs) * time.Second
}

// RateWindow returns the rolling window of the start limiter.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Pipeline.RateWindowMillis) * time.Millisecond
}

// BackoffBase returns the initial retry delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseMillis) * time.Millisecond
}

// LLMTimeout returns the chat client timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// EnsureDirectories creates the data directory tree.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
