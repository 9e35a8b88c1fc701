// Package translate implements the Translation Service of §4.8: a
// rate-limited adapter over an external translation provider with a
// bounded cache, serialising outgoing requests through a single global
// queue.
package translate

import "context"

// Result is the outcome of a translation attempt. WasTranslated is false
// whenever the original text is returned unchanged - rate-limit, cooldown,
// or provider error (§7: translation-rate-limited / translation-failed).
type Result struct {
	Text          string
	WasTranslated bool
	Provider      string
}

// Provider is the common interface every translation backend implements,
// mirroring the provider shape of the solver chain this design is
// patterned on (internal/captcha.CaptchaSolver): a name, a configured
// check, and the operations the Service needs.
type Provider interface {
	Name() string
	IsConfigured() bool
	SupportsHTML() bool
	TranslateText(ctx context.Context, text, targetLang string) (string, error)
	TranslateHTML(ctx context.Context, html, targetLang string) (string, error)
}

// rateLimitError is returned by a Provider's TranslateText/TranslateHTML
// when the backend responded with HTTP 429, so the queue can distinguish
// "rate limited" from "failed" (§4.8, §7).
type rateLimitError struct {
	provider string
}

func (e *rateLimitError) Error() string {
	return "translation provider " + e.provider + " rate limited the request"
}

// IsRateLimited reports whether err was produced by a 429 response.
func IsRateLimited(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

func newRateLimitError(provider string) error {
	return &rateLimitError{provider: provider}
}
