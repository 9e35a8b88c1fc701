// Package bridge implements the narrow host surface through which the UI
// calls the Content View Pool (§4.9, §6): a single JSON command endpoint
// modelled on the request/response envelope and validCommands dispatch
// table of the HTTP API this service is patterned on, plus a
// server-sent-events stream carrying the Pool's published events
// (navigation-complete, prefetch-status, zoom-changed, input,
// video-fullscreen, error) and scheduler-issued prefetchInfo requests back
// to the UI.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluent-reader/contentpool/internal/pool"
	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/pkg/version"
)

// validCommands is the set of command names routeCommand will dispatch,
// mirroring the fast-lookup-before-switch pattern this bridge is grounded
// on: unknown commands are rejected before any handler runs.
var validCommands = map[string]bool{
	types.CmdNavigate:        true,
	types.CmdPrefetch:        true,
	types.CmdPrefetchInfo:    true,
	types.CmdSetBounds:       true,
	types.CmdSetVisibility:   true,
	types.CmdSetReadingDir:   true,
	types.CmdOnListChanged:   true,
	types.CmdOnFeedRefreshed: true,
	types.CmdSetZoomFactor:   true,
	types.CmdSetCssZoom:      true,
	types.CmdZoomStep:        true,
	types.CmdZoomReset:       true,
	types.CmdSetVisualZoom:   true,
	types.CmdSetMobileMode:   true,
	types.CmdNuke:            true,
	"goBack":                 true,
	"goForward":               true,
	"canGoBack":               true,
	"canGoForward":            true,
	"reload":                  true,
	"stop":                    true,
	"getUrl":                  true,
	"executeJavaScript":       true,
	"capturePrefetched":       true,
	"setInputMode":            true,
	"toggleDebugPreview":      true,
	"hostBlur":                true,
	"hostFocus":               true,
}

// Request is the flat JSON envelope accepted by the command endpoint. Only
// the fields relevant to Cmd are read; the rest are ignored.
type Request struct {
	Cmd string `json:"cmd"`

	// navigate / prefetch
	ArticleID    string         `json:"articleId,omitempty"`
	URL          string         `json:"url,omitempty"`
	FeedID       string         `json:"feedId,omitempty"`
	Settings     types.Settings `json:"settings,omitempty"`
	Index        int            `json:"index,omitempty"`
	ListLength   int            `json:"listLength,omitempty"`
	SourceID     string         `json:"sourceId,omitempty"`
	MenuKey      string         `json:"menuKey,omitempty"`
	ArticleIndex int            `json:"articleIndex,omitempty"`

	// prefetchInfo response
	ArticleInfo *types.ArticleInfo `json:"articleInfo,omitempty"`

	// setBounds
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	W int `json:"w,omitempty"`
	H int `json:"h,omitempty"`

	// setVisibility / setVisualZoomMode / setMobileMode / setInputMode
	On bool `json:"on,omitempty"`

	// setReadingDirection
	Direction string `json:"direction,omitempty"`

	// zoom
	Factor float64 `json:"factor,omitempty"`
	Level  int     `json:"level,omitempty"`
	Delta  int     `json:"delta,omitempty"`

	// executeJavaScript
	Script string `json:"script,omitempty"`
}

// Response is the JSON envelope returned by the command endpoint.
type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	StartTime int64  `json:"startTimestamp"`
	EndTime   int64  `json:"endTimestamp"`
	Version   string `json:"version"`

	OK         *bool            `json:"ok,omitempty"`
	URL        string           `json:"url,omitempty"`
	Result     string           `json:"result,omitempty"`
	Pool       *pool.PoolStatus `json:"pool,omitempty"`
	Loading    *bool            `json:"loading,omitempty"`
	Screenshot string           `json:"screenshot,omitempty"`
	CanGo      *bool            `json:"canGo,omitempty"`
}

// maxBodySize bounds the command endpoint's request body, per the 1MB cap
// this bridge's handler shape is grounded on.
const maxBodySize = 1 << 20

// Bridge adapts Pool callbacks into HTTP: a single command endpoint plus
// an SSE event stream. It implements pool.EventHooks.
type Bridge struct {
	pool   *pool.Pool
	logger zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
}

// New constructs a Bridge with no Pool attached yet. Pool construction
// requires an EventHooks implementation up front, so callers build the
// Bridge first, pass it as the Pool's hooks, then call AttachPool once the
// Pool exists - breaking what would otherwise be a construction cycle.
func New() *Bridge {
	return &Bridge{
		logger:      log.With().Str("component", "bridge").Logger(),
		subscribers: make(map[chan []byte]struct{}),
	}
}

// AttachPool binds the Bridge to its Pool and registers the Bridge as the
// scheduler's prefetch-info requester. Must be called once, before the
// Bridge serves any command.
func (b *Bridge) AttachPool(p *pool.Pool) {
	b.pool = p
	p.SetPrefetchInfoRequester(b.requestPrefetchInfo)
}

// requestPrefetchInfo implements the scheduler's UI round-trip (§4.3): it
// publishes a prefetchInfoRequest event; the UI is expected to answer with
// a prefetchInfo command carrying the same menuKey.
func (b *Bridge) requestPrefetchInfo(articleIndex int, menuKey string) {
	b.publish("prefetchInfoRequest", map[string]any{
		"articleIndex": articleIndex,
		"menuKey":      menuKey,
	})
}

// --- pool.EventHooks ---

func (b *Bridge) OnNavigationComplete(articleID string) {
	b.publish(types.EventNavigationComplete, map[string]any{"articleId": articleID})
}

func (b *Bridge) OnPrefetchStatus(report types.StatusReport) {
	b.publish(types.EventPrefetchStatus, report)
}

func (b *Bridge) OnZoomChanged(evt types.ZoomChangedEvent) {
	b.publish(types.EventZoomChanged, evt)
}

func (b *Bridge) OnInput(evt types.InputEvent) {
	b.publish(types.EventInput, evt)
}

func (b *Bridge) OnVideoFullscreen(on bool) {
	b.publish(types.EventVideoFullscreen, map[string]any{"on": on})
}

func (b *Bridge) OnError(evt types.ErrorEvent) {
	b.publish(types.EventError, evt)
}

type ssePayload struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (b *Bridge) publish(event string, data any) {
	payload, err := json.Marshal(ssePayload{Event: event, Data: data})
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- payload:
		default:
			b.logger.Warn().Str("event", event).Msg("subscriber channel full, dropping event")
		}
	}
}

// ServeEvents streams published events as server-sent events until the
// client disconnects.
func (b *Bridge) ServeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case payload := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// ServeHealth answers a liveness probe with the pool's read-only status.
func (b *Bridge) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status := b.pool.GetPoolStatus()
	resp := Response{
		Status:    "ok",
		StartTime: time.Now().UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Pool:      &status,
	}
	b.writeJSON(w, http.StatusOK, resp)
}

// ServeCommand is the single command endpoint (§4.9, §6): POST a JSON
// Request body with a cmd field, get a Response back.
func (b *Bridge) ServeCommand(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		b.writeError(w, http.StatusMethodNotAllowed, "method not allowed", startTime)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		b.writeError(w, http.StatusBadRequest, "failed to read request body", startTime)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		b.writeError(w, http.StatusBadRequest, "invalid JSON request", startTime)
		return
	}

	if !validCommands[req.Cmd] {
		b.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown command: %q", req.Cmd), startTime)
		return
	}

	b.routeCommand(w, r.Context(), &req, startTime)
}

func (b *Bridge) routeCommand(w http.ResponseWriter, ctx context.Context, req *Request, startTime time.Time) {
	switch req.Cmd {
	case types.CmdNavigate:
		b.handleNavigate(w, ctx, req, startTime)
	case types.CmdPrefetch:
		b.pool.Prefetch(ctx, types.PrefetchRequest{
			ArticleID: req.ArticleID, URL: req.URL, FeedID: req.FeedID,
			Settings: req.Settings, ArticleIndex: req.ArticleIndex,
		})
		b.writeOK(w, startTime)
	case types.CmdPrefetchInfo:
		b.pool.OnPrefetchInfo(ctx, types.PrefetchInfoResponse{
			ArticleIndex: req.ArticleIndex, ArticleID: req.ArticleID, URL: req.URL,
			FeedID: req.FeedID, Settings: &req.Settings, ArticleInfo: req.ArticleInfo,
			MenuKey: req.MenuKey,
		})
		b.writeOK(w, startTime)
	case types.CmdSetBounds:
		b.pool.SetBounds(types.Bounds{X: req.X, Y: req.Y, W: req.W, H: req.H})
		b.writeOK(w, startTime)
	case types.CmdSetVisibility:
		b.pool.SetVisibility(req.On)
		b.writeOK(w, startTime)
	case types.CmdSetReadingDir:
		b.pool.SetReadingDirection(types.Direction(req.Direction))
		b.writeOK(w, startTime)
	case types.CmdOnListChanged:
		b.pool.OnListChanged(ctx)
		b.writeOK(w, startTime)
	case types.CmdOnFeedRefreshed:
		b.pool.OnFeedRefreshed()
		b.writeOK(w, startTime)
	case types.CmdSetZoomFactor:
		b.handleErr(w, b.pool.SetZoomFactor(req.FeedID, req.Factor), startTime)
	case types.CmdSetCssZoom:
		b.handleErr(w, b.pool.SetCssZoom(req.FeedID, req.Level), startTime)
	case types.CmdZoomStep:
		b.handleErr(w, b.pool.ZoomStep(req.FeedID, req.Delta), startTime)
	case types.CmdZoomReset:
		b.handleErr(w, b.pool.ZoomReset(req.FeedID), startTime)
	case types.CmdSetVisualZoom:
		b.pool.SetVisualZoomMode(req.FeedID, req.On)
		b.writeOK(w, startTime)
	case types.CmdSetMobileMode:
		b.pool.SetMobileMode(req.On)
		b.writeOK(w, startTime)
	case types.CmdNuke:
		b.pool.Nuke(ctx)
		b.writeOK(w, startTime)
	case "setInputMode":
		b.pool.SetInputMode(req.On)
		b.writeOK(w, startTime)
	case "toggleDebugPreview":
		b.pool.ToggleDebugPreview()
		b.writeOK(w, startTime)
	case "hostBlur":
		b.pool.OnHostBlur()
		b.writeOK(w, startTime)
	case "hostFocus":
		b.pool.OnHostFocus()
		b.writeOK(w, startTime)
	case "goBack":
		b.handleErr(w, b.pool.GoBack(), startTime)
	case "goForward":
		b.handleErr(w, b.pool.GoForward(), startTime)
	case "canGoBack":
		b.handleCanGo(w, b.pool.CanGoBack(), startTime)
	case "canGoForward":
		b.handleCanGo(w, b.pool.CanGoForward(), startTime)
	case "reload":
		b.handleErr(w, b.pool.Reload(), startTime)
	case "stop":
		b.pool.Stop()
		b.writeOK(w, startTime)
	case "getUrl":
		b.handleGetURL(w, startTime)
	case "executeJavaScript":
		b.handleExecuteJavaScript(w, req, startTime)
	case "capturePrefetched":
		b.handleCapturePrefetched(w, req, startTime)
	default:
		b.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown command: %q", req.Cmd), startTime)
	}
}

func (b *Bridge) handleNavigate(w http.ResponseWriter, ctx context.Context, req *Request, startTime time.Time) {
	if req.URL == "" {
		b.writeError(w, http.StatusBadRequest, "url is required", startTime)
		return
	}
	ok, err := b.pool.Navigate(ctx, types.NavigateRequest{
		ArticleID: req.ArticleID, URL: req.URL, FeedID: req.FeedID, Settings: req.Settings,
		Index: req.Index, ListLength: req.ListLength, SourceID: req.SourceID, MenuKey: req.MenuKey,
	})
	if err != nil {
		b.writeError(w, http.StatusInternalServerError, err.Error(), startTime)
		return
	}
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full(), OK: &ok}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleGetURL(w http.ResponseWriter, startTime time.Time) {
	url, err := b.pool.GetURL()
	if err != nil {
		b.writeError(w, http.StatusInternalServerError, err.Error(), startTime)
		return
	}
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full(), URL: url}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleExecuteJavaScript(w http.ResponseWriter, req *Request, startTime time.Time) {
	result, err := b.pool.ExecuteJavaScript(req.Script)
	if err != nil {
		b.writeError(w, http.StatusInternalServerError, err.Error(), startTime)
		return
	}
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full(), Result: result}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleCapturePrefetched(w http.ResponseWriter, req *Request, startTime time.Time) {
	result, err := b.pool.CapturePrefetched(req.ArticleID)
	if err != nil {
		b.writeError(w, http.StatusInternalServerError, err.Error(), startTime)
		return
	}
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full()}
	if result != nil {
		loading := result.Loading
		resp.Loading = &loading
		if len(result.Screenshot) > 0 {
			resp.Screenshot = base64.StdEncoding.EncodeToString(result.Screenshot)
		}
	}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleCanGo(w http.ResponseWriter, can bool, startTime time.Time) {
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full(), CanGo: &can}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleErr(w http.ResponseWriter, err error, startTime time.Time) {
	if err != nil {
		b.writeError(w, http.StatusConflict, err.Error(), startTime)
		return
	}
	b.writeOK(w, startTime)
}

func (b *Bridge) writeOK(w http.ResponseWriter, startTime time.Time) {
	resp := Response{Status: "ok", StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full()}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) writeError(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := Response{Status: "error", Message: message, StartTime: startTime.UnixMilli(), EndTime: time.Now().UnixMilli(), Version: version.Full()}
	b.writeJSON(w, statusCode, resp)
}

func (b *Bridge) writeJSON(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		b.logger.Error().Err(err).Msg("failed to encode response")
	}
}
