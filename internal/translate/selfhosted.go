package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// selfHostedDefaultTimeout bounds a single call to a self-hosted engine
// (e.g. LibreTranslate), grounded on the captcha package's per-provider
// HTTP client timeout pattern.
const selfHostedDefaultTimeout = 20 * time.Second

// SelfHostedProvider calls a self-hosted translation engine's HTTP API.
// It is tried first in the provider chain (§4.8.1) because it has no
// per-minute request quota.
type SelfHostedProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// SelfHostedConfig configures a SelfHostedProvider.
type SelfHostedConfig struct {
	Name    string
	Endpoint string
	APIKey  string
	Timeout time.Duration
}

// NewSelfHostedProvider creates a provider bound to a self-hosted engine.
func NewSelfHostedProvider(cfg SelfHostedConfig) *SelfHostedProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = selfHostedDefaultTimeout
	}
	name := cfg.Name
	if name == "" {
		name = "self-hosted"
	}
	return &SelfHostedProvider{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *SelfHostedProvider) Name() string { return p.name }

func (p *SelfHostedProvider) IsConfigured() bool {
	return p.endpoint != ""
}

// SupportsHTML reports true: a self-hosted engine's /translate endpoint is
// assumed to accept format=html and preserve markup (§4.8.1).
func (p *SelfHostedProvider) SupportsHTML() bool { return true }

type selfHostedRequest struct {
	Q       string `json:"q"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Format  string `json:"format"`
	APIKey  string `json:"api_key,omitempty"`
}

type selfHostedResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

func (p *SelfHostedProvider) TranslateText(ctx context.Context, text, targetLang string) (string, error) {
	return p.translate(ctx, text, targetLang, "text")
}

func (p *SelfHostedProvider) TranslateHTML(ctx context.Context, html, targetLang string) (string, error) {
	return p.translate(ctx, html, targetLang, "html")
}

func (p *SelfHostedProvider) translate(ctx context.Context, text, targetLang, format string) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("self-hosted translation provider %q not configured", p.name)
	}

	body, err := json.Marshal(selfHostedRequest{
		Q:      text,
		Source: "auto",
		Target: targetLang,
		Format: format,
		APIKey: p.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newRateLimitError(p.name)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("self-hosted provider %q returned status %d", p.name, resp.StatusCode)
	}

	var parsed selfHostedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("self-hosted provider %q error: %s", p.name, parsed.Error)
	}

	return parsed.TranslatedText, nil
}
