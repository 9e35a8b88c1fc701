package pool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/fluent-reader/contentpool/internal/security"
	"github.com/fluent-reader/contentpool/internal/translate"
	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

const fullContentFetchTimeout = 20 * time.Second

// fullContentHTTPClient fetches raw article HTML for prefetchFullContent.
// Timeout-bounded the same way the translation providers' HTTP clients are
// (internal/translate/selfhosted.go) since this, too, is a single-shot
// fetch against a third party the pool does not control.
var fullContentHTTPClient = &http.Client{Timeout: fullContentFetchTimeout}

// SetTranslationService wires the optional translation facade used by
// prefetchFullContent (§4.2) to translate title + body before rendering
// the synthetic document. Nil (the default) disables translation for
// full-content loads without disabling full-content mode itself.
func (p *Pool) SetTranslationService(svc *translate.Service) {
	p.submit(func() {
		p.translationSvc = svc
	})
}

// prefetchFullContent implements the dedicated full-content variant of
// §4.2: fetch the raw HTML via an HTTP client, extract article text,
// optionally translate title + HTML, render a synthetic HTML document, and
// load it as a data URL. The resulting View is tagged full-content (§4.1)
// and is never reused for a plain navigate's cache-hit check (enforced in
// navigate.go) or substituted for a raw-webpage prefetch of the same
// article.
func (p *Pool) prefetchFullContent(ctx context.Context, resp types.PrefetchInfoResponse) {
	if err := security.ValidateURL(resp.URL); err != nil {
		p.logger.Warn().Err(err).Str("article_id", resp.ArticleID).Msg("full-content fetch blocked by URL validation")
		p.onPrefetchTargetDone(resp.ArticleIndex)
		return
	}

	rawHTML, err := fetchRawHTML(ctx, resp.URL)
	if err != nil {
		p.logger.Warn().Err(err).Str("article_id", resp.ArticleID).Msg("full-content fetch failed, skipping prefetch target")
		p.onPrefetchTargetDone(resp.ArticleIndex)
		return
	}

	title, content := extractArticle(rawHTML)
	if resp.ArticleInfo != nil && resp.ArticleInfo.ItemTitle != "" {
		title = resp.ArticleInfo.ItemTitle
	}
	if resp.ArticleInfo != nil && resp.ArticleInfo.ItemContent != "" {
		// The UI/feed store already extracted content for us (§1's
		// extraction collaborator) - prefer it over our own heuristic.
		content = resp.ArticleInfo.ItemContent
	}

	if p.translationSvc != nil && resp.ArticleInfo != nil && resp.ArticleInfo.TranslateTo != "" {
		newTitle, _, newContent, translated := p.translationSvc.TranslateArticle(ctx, title, "", content, resp.ArticleInfo.TranslateTo)
		if translated {
			title, content = newTitle, newContent
		}
	}

	dataURL := renderSyntheticDocument(title, content)

	target := p.findByArticle(resp.ArticleID)
	if target == nil {
		target = p.findFreeView(ctx, nil)
	}
	if target == nil {
		p.onPrefetchTargetDone(resp.ArticleIndex)
		return
	}

	settings := view.Settings{FullContent: true}
	if resp.Settings != nil {
		settings.ZoomFactor = resp.Settings.ZoomFactor
		settings.MobileMode = resp.Settings.MobileMode
		settings.VisualZoom = resp.Settings.VisualZoom
	}

	p.pendingPrefetchArticleIDs[resp.ArticleID] = true
	go func() {
		_ = target.Load(ctx, p.cfg.ViewLoadTimeout, view.LoadRequest{
			URL:          dataURL,
			ArticleID:    resp.ArticleID,
			FeedID:       resp.FeedID,
			Settings:     settings,
			ArticleIndex: resp.ArticleIndex,
		})
		p.submitAsync(func() {
			delete(p.pendingPrefetchArticleIDs, resp.ArticleID)
			p.onPrefetchTargetDone(resp.ArticleIndex)
		})
	}()
}

func fetchRawHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := fullContentHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("full-content fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// skipExtractionTags are dropped entirely when measuring text density -
// navigation chrome and non-content scripts never belong in the rendered
// article.
var skipExtractionTags = map[string]bool{
	"script": true, "style": true, "nav": true, "header": true,
	"footer": true, "aside": true, "noscript": true, "form": true,
}

// extractArticle is the pool's own fallback extraction heuristic: prefer
// an <article> element if present, else the <div>/<section> with the most
// non-chrome text. Full-scale extraction is an external collaborator's
// concern (§1 Non-goals); this only covers the case where the UI's
// prefetchInfo response carries a raw URL with no pre-extracted content.
func extractArticle(rawHTML string) (title, content string) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", rawHTML
	}

	title = findTitle(doc)

	if article := findFirstTag(doc, "article"); article != nil {
		return title, renderNode(article)
	}
	if best := findDensestBlock(doc); best != nil {
		return title, renderNode(best)
	}
	return title, rawHTML
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findFirstTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirstTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findDensestBlock(n *html.Node) *html.Node {
	var best *html.Node
	bestLen := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "div" || node.Data == "section") {
			if textLen := len(textContent(node)); textLen > bestLen {
				bestLen = textLen
				best = node
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return best
}

func textContent(n *html.Node) string {
	if n.Type == html.ElementNode && skipExtractionTags[n.Data] {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// renderSyntheticDocument builds the minimal standalone HTML document
// loaded as a data URL by prefetchFullContent (§4.2).
func renderSyntheticDocument(title, content string) string {
	doc := "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" +
		html.EscapeString(title) + "</title></head><body><h1>" +
		html.EscapeString(title) + "</h1>" + content + "</body></html>"
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
}
