package translate

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxChunkChars bounds a single outgoing request to providers that impose a
// per-call length limit (§4.8).
const maxChunkChars = 4000

// textBatchSize is the number of text runs grouped into one batch when
// translating a parsed HTML document; batches are paced with a short gap
// between them so a long article doesn't fire dozens of requests back to
// back through the single-slot queue (§4.8).
const textBatchSize = 10

// textBatchGap is the pause between successive batch translations, distinct
// from the general pacer's inter-request delay: the batch, not the
// individual run, is the paced unit (§4.8).
const textBatchGap = 100 * time.Millisecond

// textRunSeparator joins a batch's runs into a single outgoing call and
// splits the translated response back into per-run text. Chosen because it
// is a non-printable ASCII control character ("unit separator") that
// article text never contains and a translation provider has no reason to
// alter.
const textRunSeparator = "\x1f"

// textRun is one translatable text node found while walking an HTML
// document, along with the node pointer so the translated text can be
// written back in place.
type textRun struct {
	node *html.Node
	text string
}

// skipTags never have their text content translated.
var skipTags = map[string]bool{
	"script": true, "style": true, "code": true, "pre": true, "noscript": true,
}

// collectTextRuns walks doc and returns every non-blank text node outside a
// skipped tag, in document order, batched in groups of textBatchSize.
func collectTextRuns(doc *html.Node) [][]textRun {
	var runs []textRun
	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode && skipTags[strings.ToLower(n.Data)] {
			skip = true
		}
		if n.Type == html.TextNode && !skip && strings.TrimSpace(n.Data) != "" {
			runs = append(runs, textRun{node: n, text: n.Data})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	var batches [][]textRun
	for i := 0; i < len(runs); i += textBatchSize {
		end := i + textBatchSize
		if end > len(runs) {
			end = len(runs)
		}
		batches = append(batches, runs[i:end])
	}
	return batches
}

// chunkText splits text into pieces no longer than maxChunkChars, preferring
// to break on sentence boundaries, then newlines, then spaces, so a provider
// with a per-request length cap never sees a request that exceeds it.
func chunkText(text string) []string {
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxChunkChars {
		cut := lastBoundary(remaining[:maxChunkChars])
		if cut <= 0 {
			cut = maxChunkChars
		}
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastBoundary(s string) int {
	if i := strings.LastIndexAny(s, ".!?"); i >= 0 {
		return i + 1
	}
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return i + 1
	}
	if i := strings.LastIndex(s, " "); i >= 0 {
		return i + 1
	}
	return len(s)
}
