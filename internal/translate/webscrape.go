package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// webScrapeDefaultTimeout is shorter than the self-hosted timeout since the
// scraped endpoint is unauthenticated and expected to be quick or fail fast.
const webScrapeDefaultTimeout = 10 * time.Second

// WebScrapeProvider calls a free, unauthenticated translate endpoint. It is
// the last resort in the provider chain (§4.8.1): no API key, a tight
// undocumented quota, and no HTML-structure awareness, so it only ever
// translates plain text runs extracted by the chunker.
type WebScrapeProvider struct {
	endpoint   string
	httpClient *http.Client
}

// WebScrapeConfig configures a WebScrapeProvider.
type WebScrapeConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewWebScrapeProvider creates a provider bound to a free web endpoint.
func NewWebScrapeProvider(cfg WebScrapeConfig) *WebScrapeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = webScrapeDefaultTimeout
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://translate.googleapis.com/translate_a/single"
	}
	return &WebScrapeProvider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *WebScrapeProvider) Name() string { return "web-scrape" }

func (p *WebScrapeProvider) IsConfigured() bool { return p.endpoint != "" }

// SupportsHTML is false: the scraped endpoint only ever sees plain text runs
// handed to it by the chunker (§4.8.1), never raw markup.
func (p *WebScrapeProvider) SupportsHTML() bool { return false }

func (p *WebScrapeProvider) TranslateText(ctx context.Context, text, targetLang string) (string, error) {
	var out strings.Builder
	for _, piece := range chunkText(text) {
		translated, err := p.translateChunk(ctx, piece, targetLang)
		if err != nil {
			return "", err
		}
		out.WriteString(translated)
	}
	return out.String(), nil
}

// TranslateHTML is unsupported; the Service never calls it because
// SupportsHTML reports false.
func (p *WebScrapeProvider) TranslateHTML(ctx context.Context, html, targetLang string) (string, error) {
	return "", fmt.Errorf("web-scrape provider does not support HTML translation")
}

func (p *WebScrapeProvider) translateChunk(ctx context.Context, text, targetLang string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	reqURL := p.endpoint + "?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newRateLimitError(p.Name())
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web-scrape provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	return parseWebScrapeResponse(body)
}

// parseWebScrapeResponse decodes the nested-array response shape the
// unofficial endpoint returns: [[[translated, original, ...], ...], ...].
func parseWebScrapeResponse(body []byte) (string, error) {
	var raw []interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	segments, ok := raw[0].([]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected translate response shape")
	}

	var out strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]interface{})
		if !ok || len(parts) == 0 {
			continue
		}
		piece, ok := parts[0].(string)
		if !ok {
			continue
		}
		out.WriteString(piece)
	}
	return out.String(), nil
}
