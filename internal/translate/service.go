package translate

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/fluent-reader/contentpool/internal/types"
)

// Service is the top-level translation facade of §4.8: a bounded cache in
// front of an ordered provider chain, every outgoing request serialised
// through a single pacer. It mirrors the shape of the solver chain it is
// patterned on (internal/captcha.SolverChain): try providers in order,
// fall back on failure, track why nothing came back.
type Service struct {
	providers []Provider
	cache     *cache
	pacer     *pacer
	logger    zerolog.Logger
}

// Config configures a Service.
type Config struct {
	Providers []Provider
	CacheSize int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Cooldown  time.Duration
}

// NewService builds a Service from explicit providers and pacing
// parameters, typically sourced from internal/config.Config and/or a
// ConfigManager's BuildProviders.
func NewService(cfg Config) *Service {
	return &Service{
		providers: cfg.Providers,
		cache:     newCache(cfg.CacheSize),
		pacer:     newPacer(cfg.BaseDelay, cfg.MaxDelay, cfg.Cooldown),
		logger:    log.With().Str("component", "translate").Logger(),
	}
}

// TranslateText translates a single plain-text string, consulting the cache
// first and falling through the provider chain on a miss (§4.8).
func (s *Service) TranslateText(ctx context.Context, text, targetLang string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}
	if cached, ok := s.cache.get(targetLang, text); ok {
		return Result{Text: cached, WasTranslated: true}
	}
	if s.pacer.inCooldown() {
		s.logger.Debug().Msg("translation request dropped, pacer in cooldown")
		return Result{Text: text}
	}
	if len(s.providers) == 0 {
		return Result{Text: text}
	}

	for _, p := range s.providers {
		if !p.IsConfigured() {
			continue
		}
		translated, err := s.callText(ctx, p, text, targetLang)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("translation attempt failed, trying next provider")
			continue
		}
		s.cache.put(targetLang, text, translated)
		return Result{Text: translated, WasTranslated: true, Provider: p.Name()}
	}

	return Result{Text: text}
}

// TranslateHTML translates an HTML fragment, preserving markup. Providers
// that support HTML natively get the whole fragment; providers that don't
// fall back to translating individual text runs in batches (§4.8).
func (s *Service) TranslateHTML(ctx context.Context, rawHTML, targetLang string) Result {
	if strings.TrimSpace(rawHTML) == "" {
		return Result{Text: rawHTML}
	}
	if cached, ok := s.cache.get(targetLang, rawHTML); ok {
		return Result{Text: cached, WasTranslated: true}
	}
	if s.pacer.inCooldown() {
		return Result{Text: rawHTML}
	}

	for _, p := range s.providers {
		if !p.IsConfigured() {
			continue
		}

		var translated string
		var err error
		if p.SupportsHTML() {
			translated, err = s.callHTML(ctx, p, rawHTML, targetLang)
		} else {
			translated, err = s.translateHTMLByRuns(ctx, p, rawHTML, targetLang)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("HTML translation attempt failed, trying next provider")
			continue
		}

		s.cache.put(targetLang, rawHTML, translated)
		return Result{Text: translated, WasTranslated: true, Provider: p.Name()}
	}

	return Result{Text: rawHTML}
}

// TranslateArticle translates title, snippet, and body content as a unit,
// per the UI-facing operation of §6. The body is HTML; title and snippet
// are plain text.
func (s *Service) TranslateArticle(ctx context.Context, title, snippet, content, targetLang string) (title2, snippet2, content2 string, translated bool) {
	titleResult := s.TranslateText(ctx, title, targetLang)
	snippetResult := s.TranslateText(ctx, snippet, targetLang)
	contentResult := s.TranslateHTML(ctx, content, targetLang)
	return titleResult.Text, snippetResult.Text, contentResult.Text,
		titleResult.WasTranslated || snippetResult.WasTranslated || contentResult.WasTranslated
}

func (s *Service) callText(ctx context.Context, p Provider, text, targetLang string) (string, error) {
	release := s.pacer.acquire(ctx)
	defer release()

	out, err := p.TranslateText(ctx, text, targetLang)
	if err != nil {
		if IsRateLimited(err) {
			s.pacer.onRateLimited()
			return "", types.NewTranslationRateLimitedError(p.Name())
		}
		return "", err
	}
	s.pacer.onSuccess()
	return out, nil
}

func (s *Service) callHTML(ctx context.Context, p Provider, rawHTML, targetLang string) (string, error) {
	release := s.pacer.acquire(ctx)
	defer release()

	out, err := p.TranslateHTML(ctx, rawHTML, targetLang)
	if err != nil {
		if IsRateLimited(err) {
			s.pacer.onRateLimited()
			return "", types.NewTranslationRateLimitedError(p.Name())
		}
		return "", err
	}
	s.pacer.onSuccess()
	return out, nil
}

// translateHTMLByRuns parses rawHTML, walks its text nodes in batches of
// textBatchSize, and translates each batch as a single unit: one outgoing
// call per batch rather than one per run, with textBatchGap separating
// batches. Text nodes are rewritten in place and the document is
// re-serialised (§4.8).
func (s *Service) translateHTMLByRuns(ctx context.Context, p Provider, rawHTML, targetLang string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	batches := collectTextRuns(doc)
	for i, batch := range batches {
		if err := s.translateRunBatch(ctx, p, batch, targetLang); err != nil {
			return "", err
		}
		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(textBatchGap):
			}
		}
	}

	var out strings.Builder
	if err := html.Render(&out, doc); err != nil {
		return "", err
	}
	return out.String(), nil
}

// translateRunBatch joins a batch's runs into one outgoing call so the
// batch, not the individual run, is what passes through the pacer, then
// splits the result back across the runs' nodes. If the provider fails to
// round-trip the separator the batch is left untranslated rather than
// risking runs being written back in the wrong place.
func (s *Service) translateRunBatch(ctx context.Context, p Provider, batch []textRun, targetLang string) error {
	if len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, run := range batch {
		texts[i] = run.text
	}

	translated, err := s.callText(ctx, p, strings.Join(texts, textRunSeparator), targetLang)
	if err != nil {
		return err
	}

	parts := strings.Split(translated, textRunSeparator)
	if len(parts) != len(batch) {
		s.logger.Warn().Str("provider", p.Name()).Int("want", len(batch)).Int("got", len(parts)).
			Msg("translated batch lost its run separators, leaving batch untranslated")
		return nil
	}
	for i, run := range batch {
		run.node.Data = parts[i]
	}
	return nil
}

// Close releases pacing resources. Currently a no-op hook kept for
// symmetry with ConfigManager.Close, in case a future provider holds an
// open connection worth draining.
func (s *Service) Close() error {
	return nil
}
