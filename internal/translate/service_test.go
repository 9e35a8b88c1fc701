package translate

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeProvider struct {
	name         string
	configured   bool
	supportsHTML bool
	rateLimited  bool
	failWith     error
	calls        int
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) SupportsHTML() bool { return f.supportsHTML }

func (f *fakeProvider) TranslateText(ctx context.Context, text, targetLang string) (string, error) {
	f.calls++
	if f.rateLimited {
		return "", newRateLimitError(f.name)
	}
	if f.failWith != nil {
		return "", f.failWith
	}
	return strings.ToUpper(text), nil
}

func (f *fakeProvider) TranslateHTML(ctx context.Context, html, targetLang string) (string, error) {
	f.calls++
	if f.rateLimited {
		return "", newRateLimitError(f.name)
	}
	if f.failWith != nil {
		return "", f.failWith
	}
	return strings.ToUpper(html), nil
}

func newTestService(providers ...Provider) *Service {
	return NewService(Config{
		Providers: providers,
		CacheSize: 10,
		BaseDelay: time.Millisecond,
		MaxDelay:  time.Millisecond,
		Cooldown:  time.Millisecond,
	})
}

func TestService_TranslateText_UsesFirstConfiguredProvider(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true}
	svc := newTestService(p)

	result := svc.TranslateText(context.Background(), "hello", "fr")
	if !result.WasTranslated {
		t.Fatal("expected translation to succeed")
	}
	if result.Text != "HELLO" {
		t.Errorf("text = %q, want HELLO", result.Text)
	}
	if result.Provider != "p1" {
		t.Errorf("provider = %q, want p1", result.Provider)
	}
}

func TestService_TranslateText_CacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true}
	svc := newTestService(p)

	first := svc.TranslateText(context.Background(), "hello", "fr")
	second := svc.TranslateText(context.Background(), "hello", "fr")

	if first.Text != second.Text {
		t.Errorf("cached result %q != original %q", second.Text, first.Text)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call should hit cache)", p.calls)
	}
}

func TestService_TranslateText_SkipsUnconfiguredProviders(t *testing.T) {
	unconfigured := &fakeProvider{name: "p1", configured: false}
	fallback := &fakeProvider{name: "p2", configured: true}
	svc := newTestService(unconfigured, fallback)

	result := svc.TranslateText(context.Background(), "hello", "fr")
	if result.Provider != "p2" {
		t.Errorf("provider = %q, want p2 (fallback)", result.Provider)
	}
	if unconfigured.calls != 0 {
		t.Error("unconfigured provider should never be called")
	}
}

func TestService_TranslateText_FallsThroughOnFailure(t *testing.T) {
	failing := &fakeProvider{name: "p1", configured: true, failWith: errTestFailure}
	working := &fakeProvider{name: "p2", configured: true}
	svc := newTestService(failing, working)

	result := svc.TranslateText(context.Background(), "hello", "fr")
	if !result.WasTranslated || result.Provider != "p2" {
		t.Errorf("expected fallback to p2, got %+v", result)
	}
}

func TestService_TranslateText_NoProvidersReturnsOriginal(t *testing.T) {
	svc := newTestService()
	result := svc.TranslateText(context.Background(), "hello", "fr")
	if result.WasTranslated {
		t.Error("expected no translation with zero providers")
	}
	if result.Text != "hello" {
		t.Errorf("text = %q, want original unchanged", result.Text)
	}
}

func TestService_TranslateText_EmptyInputIsNoop(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true}
	svc := newTestService(p)

	result := svc.TranslateText(context.Background(), "   ", "fr")
	if result.WasTranslated {
		t.Error("expected blank text to short-circuit without calling a provider")
	}
	if p.calls != 0 {
		t.Error("provider should not be called for blank input")
	}
}

func TestService_TranslateText_RateLimitEngagesCooldown(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true, rateLimited: true}
	svc := newTestService(p)

	result := svc.TranslateText(context.Background(), "hello", "fr")
	if result.WasTranslated {
		t.Error("expected no translation when provider is rate limited")
	}
	if !svc.pacer.inCooldown() {
		t.Error("expected pacer to enter cooldown after a rate-limit response")
	}
}

func TestService_TranslateHTML_NonHTMLProviderUsesTextRuns(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true, supportsHTML: false}
	svc := newTestService(p)

	result := svc.TranslateHTML(context.Background(), "<p>hello</p><p>world</p>", "fr")
	if !result.WasTranslated {
		t.Fatal("expected HTML translation to succeed via text runs")
	}
	if !strings.Contains(result.Text, "HELLO") || !strings.Contains(result.Text, "WORLD") {
		t.Errorf("expected translated text runs in output, got %q", result.Text)
	}
}

func TestService_TranslateHTML_HTMLCapableProviderGetsWholeFragment(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true, supportsHTML: true}
	svc := newTestService(p)

	result := svc.TranslateHTML(context.Background(), "<p>hello</p>", "fr")
	if !result.WasTranslated {
		t.Fatal("expected translation to succeed")
	}
	if result.Text != "<P>HELLO</P>" {
		t.Errorf("text = %q, want whole-fragment translation", result.Text)
	}
}

func TestService_TranslateArticle_CombinesAllThreeFields(t *testing.T) {
	p := &fakeProvider{name: "p1", configured: true, supportsHTML: true}
	svc := newTestService(p)

	title, snippet, content, translated := svc.TranslateArticle(context.Background(), "Title", "Snippet", "<p>Body</p>", "fr")
	if !translated {
		t.Fatal("expected article translation to report translated=true")
	}
	if title != "TITLE" || snippet != "SNIPPET" || content != "<P>BODY</P>" {
		t.Errorf("got title=%q snippet=%q content=%q", title, snippet, content)
	}
}

var errTestFailure = &fakeError{"synthetic provider failure"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }
