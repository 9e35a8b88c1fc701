// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxPoolSize             = 20
	minPoolSize             = 2
	maxStaleLoadAge         = 10 * time.Minute
	maxLoadTimeout          = 2 * time.Minute
	maxTranslationCacheSize = 5000
	maxTranslationDelay     = 5 * time.Minute
	minAPIKeyLength         = 16
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Debug HTTP surface
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Pool settings - CRITICAL for memory efficiency
	PoolSize          int
	PoolMinSize       int
	ViewLoadTimeout   time.Duration
	StaleLoadAge      time.Duration
	PrefetchEnabled   bool
	PrefetchCascaded  bool
	PrefetchDelay     time.Duration

	// Logging
	LogLevel string
	LogHTML  bool

	// Profiling
	PProfEnabled  bool
	PProfPort     int
	PProfBindAddr string

	// Security (debug surface)
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool
	CORSAllowedOrigins []string

	// API Key Authentication (debug surface)
	APIKeyEnabled bool
	APIKey        string

	// Translation service settings
	TranslationEnabled         bool
	TranslationPrimaryProvider string // "selfhosted" or "webscrape"
	TranslationSelfHostedURL   string
	TranslationSelfHostedKey   string
	TranslationCacheSize       int
	TranslationBaseDelay       time.Duration
	TranslationMaxDelay        time.Duration
	TranslationCooldown        time.Duration
	TranslationRequestTimeout  time.Duration

	// Provider config document (hot-reloadable)
	ProvidersPath      string
	ProvidersHotReload bool
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8732),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		// Pool - tuned per spec §2: default 5-7, min 2
		PoolSize:         getEnvInt("POOL_SIZE", 6),
		PoolMinSize:      getEnvInt("POOL_MIN_SIZE", 2),
		ViewLoadTimeout:  getEnvDuration("VIEW_LOAD_TIMEOUT", 30*time.Second),
		StaleLoadAge:     getEnvDuration("STALE_LOAD_AGE", 60*time.Second),
		PrefetchEnabled:  getEnvBool("PREFETCH_ENABLED", true),
		PrefetchCascaded: getEnvBool("PREFETCH_CASCADED", true),
		PrefetchDelay:    getEnvDuration("PREFETCH_DELAY", 0),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogHTML:  getEnvBool("LOG_HTML", false),

		PProfEnabled:  getEnvBool("PPROF_ENABLED", false),
		PProfPort:     getEnvInt("PPROF_PORT", 6060),
		PProfBindAddr: getEnvString("PPROF_BIND_ADDR", "127.0.0.1"),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),

		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		TranslationEnabled:         getEnvBool("TRANSLATION_ENABLED", false),
		TranslationPrimaryProvider: getEnvString("TRANSLATION_PRIMARY_PROVIDER", "selfhosted"),
		TranslationSelfHostedURL:   getEnvString("TRANSLATION_SELFHOSTED_URL", ""),
		TranslationSelfHostedKey:   getEnvString("TRANSLATION_SELFHOSTED_KEY", ""),
		TranslationCacheSize:       getEnvInt("TRANSLATION_CACHE_SIZE", 500),
		TranslationBaseDelay:       getEnvDuration("TRANSLATION_BASE_DELAY", 2*time.Second),
		TranslationMaxDelay:        getEnvDuration("TRANSLATION_MAX_DELAY", 60*time.Second),
		TranslationCooldown:        getEnvDuration("TRANSLATION_COOLDOWN", 60*time.Second),
		TranslationRequestTimeout:  getEnvDuration("TRANSLATION_REQUEST_TIMEOUT", 20*time.Second),

		ProvidersPath:      getEnvString("PROVIDERS_PATH", ""),
		ProvidersHotReload: getEnvBool("PROVIDERS_HOT_RELOAD", false),
	}
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8732")
		c.Port = 8732
	}

	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Pool size validation per spec §2: default 5-7, hard minimum 2
	if c.PoolMinSize < minPoolSize {
		log.Warn().Int("min_size", c.PoolMinSize).Msg("PoolMinSize too low, using minimum 2")
		c.PoolMinSize = minPoolSize
	}
	if c.PoolSize < c.PoolMinSize {
		log.Warn().
			Int("size", c.PoolSize).
			Int("min", c.PoolMinSize).
			Msg("PoolSize below PoolMinSize, raising to minimum")
		c.PoolSize = c.PoolMinSize
	} else if c.PoolSize > maxPoolSize {
		log.Warn().
			Int("size", c.PoolSize).
			Int("max", maxPoolSize).
			Msg("PoolSize too large, capping to maximum")
		c.PoolSize = maxPoolSize
	}

	if c.ViewLoadTimeout < time.Second {
		log.Warn().Dur("timeout", c.ViewLoadTimeout).Msg("ViewLoadTimeout too short, using 30s")
		c.ViewLoadTimeout = 30 * time.Second
	} else if c.ViewLoadTimeout > maxLoadTimeout {
		log.Warn().
			Dur("timeout", c.ViewLoadTimeout).
			Dur("max", maxLoadTimeout).
			Msg("ViewLoadTimeout too long, capping to maximum")
		c.ViewLoadTimeout = maxLoadTimeout
	}

	if c.StaleLoadAge < 10*time.Second {
		log.Warn().Dur("age", c.StaleLoadAge).Msg("StaleLoadAge too short, using 60s")
		c.StaleLoadAge = 60 * time.Second
	} else if c.StaleLoadAge > maxStaleLoadAge {
		log.Warn().
			Dur("age", c.StaleLoadAge).
			Dur("max", maxStaleLoadAge).
			Msg("StaleLoadAge too long, capping to maximum")
		c.StaleLoadAge = maxStaleLoadAge
	}

	if c.RateLimitEnabled {
		const maxRateLimitRPM = 10000
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.PProfEnabled && c.PProfBindAddr != "127.0.0.1" && c.PProfBindAddr != "localhost" {
		log.Warn().
			Str("addr", c.PProfBindAddr).
			Msg("WARNING: pprof exposed on non-localhost address - this is a security risk")
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin requests to the debug surface will be rejected")
	}

	c.validateTranslationConfig()

	if c.ProvidersPath != "" {
		if strings.Contains(c.ProvidersPath, "..") {
			log.Error().
				Str("path", c.ProvidersPath).
				Msg("ProvidersPath contains path traversal sequence (..), ignoring")
			c.ProvidersPath = ""
		}
		if c.ProvidersHotReload && c.ProvidersPath != "" {
			if _, err := os.Stat(c.ProvidersPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.ProvidersPath).
					Msg("ProvidersPath does not exist - hot-reload will watch for file creation")
			}
		}
	}
	if c.ProvidersHotReload && c.ProvidersPath == "" {
		log.Warn().Msg("PROVIDERS_HOT_RELOAD enabled but PROVIDERS_PATH not set - hot-reload disabled")
		c.ProvidersHotReload = false
	}

	if c.APIKeyEnabled {
		const maxAPIKeyLength = 256
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for secure authentication - consider using a longer key")
		case len(c.APIKey) > maxAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("max", maxAPIKeyLength).
				Msg("API_KEY is too long")
		}
	}
}

// validateTranslationConfig validates translation service configuration.
func (c *Config) validateTranslationConfig() {
	if c.TranslationCacheSize < 1 {
		log.Warn().Int("size", c.TranslationCacheSize).Msg("TranslationCacheSize too low, using 500")
		c.TranslationCacheSize = 500
	} else if c.TranslationCacheSize > maxTranslationCacheSize {
		log.Warn().
			Int("size", c.TranslationCacheSize).
			Int("max", maxTranslationCacheSize).
			Msg("TranslationCacheSize too high, capping to maximum")
		c.TranslationCacheSize = maxTranslationCacheSize
	}

	if c.TranslationBaseDelay < 100*time.Millisecond {
		log.Warn().Dur("delay", c.TranslationBaseDelay).Msg("TranslationBaseDelay too short, using 2s")
		c.TranslationBaseDelay = 2 * time.Second
	}
	if c.TranslationMaxDelay < c.TranslationBaseDelay {
		log.Warn().
			Dur("max", c.TranslationMaxDelay).
			Dur("base", c.TranslationBaseDelay).
			Msg("TranslationMaxDelay below base delay, raising to base")
		c.TranslationMaxDelay = c.TranslationBaseDelay
	} else if c.TranslationMaxDelay > maxTranslationDelay {
		log.Warn().
			Dur("max", c.TranslationMaxDelay).
			Dur("cap", maxTranslationDelay).
			Msg("TranslationMaxDelay too high, capping to maximum")
		c.TranslationMaxDelay = maxTranslationDelay
	}

	validProviders := map[string]bool{"selfhosted": true, "webscrape": true}
	if c.TranslationPrimaryProvider != "" && !validProviders[strings.ToLower(c.TranslationPrimaryProvider)] {
		log.Warn().
			Str("provider", c.TranslationPrimaryProvider).
			Msg("Invalid TRANSLATION_PRIMARY_PROVIDER, using 'selfhosted'")
		c.TranslationPrimaryProvider = "selfhosted"
	}
	c.TranslationPrimaryProvider = strings.ToLower(c.TranslationPrimaryProvider)

	if c.TranslationEnabled && c.TranslationPrimaryProvider == "selfhosted" && c.TranslationSelfHostedURL == "" {
		log.Warn().Msg("TRANSLATION_ENABLED is true with primary provider 'selfhosted' but TRANSLATION_SELFHOSTED_URL is empty - falling back to webscrape provider")
	}
}

// HasSelfHostedProvider returns true if the self-hosted translation endpoint is configured.
func (c *Config) HasSelfHostedProvider() bool {
	return c.TranslationSelfHostedURL != ""
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration >= 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must not be negative, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
