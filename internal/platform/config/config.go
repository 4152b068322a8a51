// Package config loads runtime configuration for the cart engine from the
// environment, with typed defaults for everything optional.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "http://localhost:8080"
	defaultRequestTimeout  = 10 * time.Second
	defaultAutoRetryCap    = 3
	defaultLogLevel        = "info"
	defaultLocale          = "en-US"
	defaultCurrencySymbol  = "$"
	defaultNotifyDuration  = 4 * time.Second
	defaultTokenRefreshGap = 30 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Client  ClientConfig
	Retry   RetryConfig
	Logging LoggingConfig
	Display DisplayConfig
}

// ClientConfig configures the storefront transport adapter.
type ClientConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	BearerToken     string
	TokenRefreshGap time.Duration
}

// RetryConfig bounds automatic retries.
type RetryConfig struct {
	MaxAutoAttempts int
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string
}

// DisplayConfig controls locale-aware amount formatting.
type DisplayConfig struct {
	Locale         string
	CurrencySymbol string
	NotifyDuration time.Duration
}

// Load reads configuration from the environment, applying defaults for every
// unset value.
func Load() (Config, error) {
	cfg := Config{
		Client: ClientConfig{
			BaseURL:         getEnv("CART_API_BASE_URL", defaultBaseURL),
			RequestTimeout:  defaultRequestTimeout,
			BearerToken:     strings.TrimSpace(os.Getenv("CART_BEARER_TOKEN")),
			TokenRefreshGap: defaultTokenRefreshGap,
		},
		Retry: RetryConfig{
			MaxAutoAttempts: defaultAutoRetryCap,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", defaultLogLevel),
		},
		Display: DisplayConfig{
			Locale:         getEnv("CART_LOCALE", defaultLocale),
			CurrencySymbol: getEnv("CART_CURRENCY_SYMBOL", defaultCurrencySymbol),
			NotifyDuration: defaultNotifyDuration,
		},
	}

	timeout, err := getEnvDuration("CART_REQUEST_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Client.RequestTimeout = timeout

	attempts, err := getEnvInt("CART_AUTO_RETRY_ATTEMPTS", defaultAutoRetryCap)
	if err != nil {
		return Config{}, err
	}
	if attempts < 0 {
		return Config{}, fmt.Errorf("config: CART_AUTO_RETRY_ATTEMPTS must be non-negative, got %d", attempts)
	}
	cfg.Retry.MaxAutoAttempts = attempts

	if strings.TrimSpace(cfg.Client.BaseURL) == "" {
		return Config{}, fmt.Errorf("config: CART_API_BASE_URL must not be blank")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return parsed, nil
}
