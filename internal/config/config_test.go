package config

import (
	"os"
	"testing"
	"time"
)

func clearPoolEnv() {
	envVars := []string{
		"HOST", "PORT", "HEADLESS", "BROWSER_PATH",
		"POOL_SIZE", "POOL_MIN_SIZE", "VIEW_LOAD_TIMEOUT", "STALE_LOAD_AGE",
		"PREFETCH_ENABLED", "PREFETCH_CASCADED", "PREFETCH_DELAY",
		"LOG_LEVEL", "LOG_HTML",
		"TRANSLATION_ENABLED", "TRANSLATION_PRIMARY_PROVIDER",
		"TRANSLATION_SELFHOSTED_URL", "TRANSLATION_CACHE_SIZE",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearPoolEnv()
	defer clearPoolEnv()

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8732 {
		t.Errorf("Expected default port 8732, got %d", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.PoolSize != 6 {
		t.Errorf("Expected default pool size 6, got %d", cfg.PoolSize)
	}
	if cfg.PoolMinSize != 2 {
		t.Errorf("Expected default pool min size 2, got %d", cfg.PoolMinSize)
	}
	if cfg.ViewLoadTimeout != 30*time.Second {
		t.Errorf("Expected default view load timeout 30s, got %v", cfg.ViewLoadTimeout)
	}
	if cfg.StaleLoadAge != 60*time.Second {
		t.Errorf("Expected default stale load age 60s, got %v", cfg.StaleLoadAge)
	}
	if !cfg.PrefetchEnabled {
		t.Error("Expected PrefetchEnabled to be true by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.TranslationEnabled {
		t.Error("Expected TranslationEnabled to be false by default")
	}
	if cfg.TranslationCacheSize != 500 {
		t.Errorf("Expected default translation cache size 500, got %d", cfg.TranslationCacheSize)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearPoolEnv()
	defer clearPoolEnv()

	os.Setenv("HOST", "0.0.0.0")
	os.Setenv("PORT", "9999")
	os.Setenv("POOL_SIZE", "4")
	os.Setenv("POOL_MIN_SIZE", "2")
	os.Setenv("VIEW_LOAD_TIMEOUT", "15s")
	os.Setenv("PREFETCH_CASCADED", "false")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("TRANSLATION_ENABLED", "true")
	os.Setenv("TRANSLATION_PRIMARY_PROVIDER", "webscrape")

	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %q", cfg.Host)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Port)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("Expected pool size 4, got %d", cfg.PoolSize)
	}
	if cfg.ViewLoadTimeout != 15*time.Second {
		t.Errorf("Expected view load timeout 15s, got %v", cfg.ViewLoadTimeout)
	}
	if cfg.PrefetchCascaded {
		t.Error("Expected PrefetchCascaded to be false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.TranslationEnabled {
		t.Error("Expected TranslationEnabled to be true")
	}
	if cfg.TranslationPrimaryProvider != "webscrape" {
		t.Errorf("Expected provider 'webscrape', got %q", cfg.TranslationPrimaryProvider)
	}
}

func TestHasSelfHostedProvider(t *testing.T) {
	cfg := &Config{}
	if cfg.HasSelfHostedProvider() {
		t.Error("Expected HasSelfHostedProvider to return false when URL is empty")
	}

	cfg.TranslationSelfHostedURL = "http://localhost:5000/translate"
	if !cfg.HasSelfHostedProvider() {
		t.Error("Expected HasSelfHostedProvider to return true when URL is set")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	clearPoolEnv()
	os.Setenv("PORT", "not_a_number")
	os.Setenv("VIEW_LOAD_TIMEOUT", "not_a_duration")
	defer clearPoolEnv()

	cfg := Load()

	if cfg.Port != 8732 {
		t.Errorf("Expected default port 8732 for invalid value, got %d", cfg.Port)
	}
	if cfg.ViewLoadTimeout != 30*time.Second {
		t.Errorf("Expected default view load timeout for invalid value, got %v", cfg.ViewLoadTimeout)
	}
}

func TestValidateClampsPoolSize(t *testing.T) {
	cfg := &Config{PoolSize: 1, PoolMinSize: 2, LogLevel: "info"}
	cfg.Validate()
	if cfg.PoolSize != 2 {
		t.Errorf("Expected PoolSize raised to PoolMinSize 2, got %d", cfg.PoolSize)
	}

	cfg2 := &Config{PoolSize: 100, PoolMinSize: 2, LogLevel: "info"}
	cfg2.Validate()
	if cfg2.PoolSize != maxPoolSize {
		t.Errorf("Expected PoolSize capped to %d, got %d", maxPoolSize, cfg2.PoolSize)
	}
}

func TestValidateTranslationDelays(t *testing.T) {
	cfg := &Config{
		PoolSize: 6, PoolMinSize: 2, LogLevel: "info",
		TranslationBaseDelay: 2 * time.Second,
		TranslationMaxDelay:  1 * time.Second,
		TranslationCacheSize: 500,
	}
	cfg.Validate()
	if cfg.TranslationMaxDelay != cfg.TranslationBaseDelay {
		t.Errorf("Expected TranslationMaxDelay raised to base delay, got %v", cfg.TranslationMaxDelay)
	}
}
