// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the capture protocol and the service client.
const (
	DefaultServiceBaseURL      = "http://localhost:8000"
	DefaultRequestTimeout      = 30 * time.Second
	DefaultCapturePollInterval = 1 * time.Second
	DefaultCaptureTimeout      = 60 * time.Second
	DefaultResultCheckInterval = 1 * time.Minute
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken    string
	ServiceBaseURL      string
	LogLevel            string
	RequestTimeout      time.Duration
	CapturePollInterval time.Duration
	CaptureTimeout      time.Duration
	ResultCheckInterval time.Duration
	RequestsPerSecond   float64
}

// LoadDotEnv seeds the environment from the given files (".env" when none
// are given). Missing files are ignored and variables that are already set
// are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	baseURL := os.Getenv("SERVICE_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultServiceBaseURL
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	requestTimeout, err := durationEnv("REQUEST_TIMEOUT", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("CAPTURE_POLL_INTERVAL", DefaultCapturePollInterval)
	if err != nil {
		return nil, err
	}
	captureTimeout, err := durationEnv("CAPTURE_TIMEOUT", DefaultCaptureTimeout)
	if err != nil {
		return nil, err
	}
	if pollInterval >= captureTimeout {
		return nil, fmt.Errorf("CAPTURE_POLL_INTERVAL (%s) must be shorter than CAPTURE_TIMEOUT (%s)", pollInterval, captureTimeout)
	}

	checkInterval, err := durationEnv("RESULT_CHECK_INTERVAL", DefaultResultCheckInterval)
	if err != nil {
		return nil, err
	}

	var rps float64
	if raw := os.Getenv("REQUESTS_PER_SECOND"); raw != "" {
		rps, err = strconv.ParseFloat(raw, 64)
		if err != nil || rps < 0 {
			return nil, fmt.Errorf("invalid REQUESTS_PER_SECOND %q", raw)
		}
	}

	return &Config{
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		ServiceBaseURL:      baseURL,
		LogLevel:            logLevel,
		RequestTimeout:      requestTimeout,
		CapturePollInterval: pollInterval,
		CaptureTimeout:      captureTimeout,
		ResultCheckInterval: checkInterval,
		RequestsPerSecond:   rps,
	}, nil
}

// RequireBotToken returns an error when the Telegram token is not set.
func (c *Config) RequireBotToken() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}
