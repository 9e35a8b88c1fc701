// Package view implements a single headless browsing surface: one entry
// in the Content View Pool. A View owns exactly one *rod.Page drawn from a
// shared *rod.Browser and tracks the per-surface state machine, loaded-with
// settings, and placement fields the Pool arbitrates.
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/fluent-reader/contentpool/internal/security"
	"github.com/fluent-reader/contentpool/internal/types"
)

// Status is one of the four states a View's surface can be in.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// offScreenCoordinate is the constant large-negative position used to move
// a View out of the visible area while keeping its surface alive (§4.1).
const offScreenCoordinate = -10000

// zoomFactorMin and zoomFactorMax bound the CSS zoom factor (§4.1).
const (
	zoomFactorMin = 0.25
	zoomFactorMax = 5.0
	zoomLevelMin  = -6
	zoomLevelMax  = 40
)

// Settings mirrors types.Settings plus the full-content flag that
// distinguishes raw-webpage loads from extracted-article loads.
type Settings struct {
	ZoomFactor   float64
	MobileMode   bool
	VisualZoom   bool
	FullContent  bool
}

// Hooks are the event callbacks a View invokes on its owning Pool.
// Every method is invoked on the Pool's single loop goroutine via its
// command channel, never directly from a rod event callback - the Pool's
// adapter (poolViewHooks in internal/pool) re-posts onto that channel.
type Hooks interface {
	OnStatusChange(v *View, status Status)
	OnDOMReady(v *View)
	OnLoadError(v *View, err error)
	OnVideoFullscreen(v *View, on bool)
	// OnInput is called for every key-down event the page observes. The
	// Focus & Input Router (internal/pool) decides what to do with it.
	OnInput(v *View, evt types.InputEvent)
}

// LoadRequest is the argument to Load.
type LoadRequest struct {
	URL          string
	ArticleID    string
	FeedID       string
	Settings     Settings
	UseMobileUA  bool
	ArticleIndex int
}

// View is one entry in the Content View Pool.
type View struct {
	id     string
	hooks  Hooks
	logger zerolog.Logger

	browser *rod.Browser
	page    *rod.Page

	mu sync.Mutex

	status        Status
	hasLoadedOnce bool
	loadError     error
	loadStartTime time.Time

	articleID    string
	feedID       string
	url          string
	articleIndex int

	settings Settings

	isActive           bool
	isAtRenderPosition bool
	isOffScreen        bool
	bounds             types.Bounds

	lastUsedAt int64 // unix ms

	cssZoomLevel int
	cancelLoad   context.CancelFunc
	exposeStop   func() error

	closed bool
}

// New constructs a View bound to a shared browser. The underlying page is
// not created until Create is called.
func New(id string, browser *rod.Browser, hooks Hooks) *View {
	return &View{
		id:      id,
		browser: browser,
		hooks:   hooks,
		logger:  log.With().Str("component", "view").Str("view_id", id).Logger(),
		status:  StatusEmpty,
	}
}

// ID returns the view's stable short identifier.
func (v *View) ID() string { return v.id }

// Create builds the underlying page, registers event hooks, and starts the
// view off-screen and hidden. Idempotent after Destroy.
func (v *View) Create(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.page != nil {
		return nil
	}

	page, err := v.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("view %s: create page: %w", v.id, err)
	}

	// Apply stealth patches so article pages that fingerprint headless
	// Chromium render the same content a real browser would see.
	if err := stealth.Page(page); err != nil {
		v.logger.Warn().Err(err).Msg("failed to apply stealth patches, continuing without them")
	}

	v.page = page
	v.status = StatusEmpty
	v.closed = false
	v.isOffScreen = true
	v.isActive = false
	v.isAtRenderPosition = false

	v.installScripts()
	v.subscribeEvents()

	return nil
}

// installScripts injects the dialog-suppression and touch re-registration
// scripts once per dom-ready, per §4.1, and wires a before-input hook that
// forwards key-down events to Go via an exposed binding so the Focus &
// Input Router (internal/pool) can arbitrate them (§4.6).
func (v *View) installScripts() {
	_, err := v.page.EvalOnNewDocument(`() => {
		window.alert = function() {};
		window.confirm = function() { return true; };
		window.prompt = function() { return null; };
		document.addEventListener('keydown', function(e) {
			if (window.__contentPoolKeyDown) {
				window.__contentPoolKeyDown(JSON.stringify({
					key: e.key, ctrl: e.ctrlKey, shift: e.shiftKey, alt: e.altKey,
				}));
			}
		}, true);
		document.addEventListener('DOMContentLoaded', function() {
			// re-register touch listeners dropped by emulation toggles
		}, { once: true });
	}`)
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to install dialog-suppression script")
	}

	stop, err := v.page.Expose("__contentPoolKeyDown", func(g gson.JSON) (interface{}, error) {
		var evt types.InputEvent
		if jsonErr := json.Unmarshal([]byte(g.Str()), &evt); jsonErr != nil {
			return nil, nil
		}
		v.hooks.OnInput(v, evt)
		return nil, nil
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to expose key-down binding")
		return
	}
	v.exposeStop = stop
}

// subscribeEvents wires dom-ready notifications into the OnDOMReady hook
// and dismisses JavaScript dialogs. Load failures are reported by Load, and
// fullscreen changes are not subscribed to here. Runs in its own goroutine
// for the lifetime of the page; torn down implicitly when the page closes.
func (v *View) subscribeEvents() {
	go v.page.EachEvent(func(e *proto.PageLifecycleEvent) {
		if e.Name == "DOMContentLoaded" {
			v.mu.Lock()
			wasLoading := v.status == StatusLoading
			v.mu.Unlock()
			if wasLoading {
				v.hooks.OnDOMReady(v)
			}
		}
	}, func(e *proto.PageJavascriptDialogOpening) {
		// Dialog-suppression script should prevent these; dismiss defensively.
		_ = proto.PageHandleJavaScriptDialog{Accept: false}.Call(v.page)
	})()
}

// Destroy releases the underlying surface and drops the View to empty.
// Identity is preserved.
func (v *View) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyLocked()
}

func (v *View) destroyLocked() {
	if v.cancelLoad != nil {
		v.cancelLoad()
		v.cancelLoad = nil
	}
	if v.exposeStop != nil {
		_ = v.exposeStop()
		v.exposeStop = nil
	}
	if v.page != nil && !v.closed {
		if err := v.page.Close(); err != nil {
			v.logger.Debug().Err(err).Msg("error closing page during destroy")
		}
	}
	v.page = nil
	v.closed = true
	v.status = StatusEmpty
	v.isActive = false
	v.isAtRenderPosition = false
	v.isOffScreen = false
}

// Recycle destroys the surface and clears article binding and loaded-with
// settings, but preserves identity and lastUsedAt (§4.1).
func (v *View) Recycle() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.destroyLocked()
	v.articleID = ""
	v.feedID = ""
	v.url = ""
	v.articleIndex = -1
	v.hasLoadedOnce = false
	v.loadError = nil
	v.settings = Settings{}
	v.cssZoomLevel = 0
}

// Snapshot is an immutable read of View state, used by the Pool and the
// debug surface without holding the View's lock.
type Snapshot struct {
	ID                 string
	Status             Status
	HasLoadedOnce      bool
	ArticleID          string
	FeedID             string
	URL                string
	ArticleIndex       int
	IsActive           bool
	IsAtRenderPosition bool
	IsOffScreen        bool
	LastUsedAt         int64
	LoadError          error
	CssZoomLevel       int
	VisualZoomOn       bool
	FullContent        bool
}

// Snapshot returns a copy of the View's current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		ID:                 v.id,
		Status:             v.status,
		HasLoadedOnce:      v.hasLoadedOnce,
		ArticleID:          v.articleID,
		FeedID:             v.feedID,
		URL:                v.url,
		ArticleIndex:       v.articleIndex,
		IsActive:           v.isActive,
		IsAtRenderPosition: v.isAtRenderPosition,
		IsOffScreen:        v.isOffScreen,
		LastUsedAt:         v.lastUsedAt,
		LoadError:          v.loadError,
		CssZoomLevel:       v.cssZoomLevel,
		VisualZoomOn:       v.settings.VisualZoom,
		FullContent:        v.settings.FullContent,
	}
}

// Load records bindings and settings, enters loading, starts navigation,
// and resolves on the first of {dom-ready, 30s timeout, non-ABORTED
// failure}. ABORTED is treated as success (§4.1).
func (v *View) Load(ctx context.Context, timeout time.Duration, req LoadRequest) error {
	v.mu.Lock()
	if v.page == nil {
		v.mu.Unlock()
		if err := v.Create(ctx); err != nil {
			return err
		}
		v.mu.Lock()
	}

	loadCtx, cancel := context.WithCancel(ctx)
	v.cancelLoad = cancel
	v.articleID = req.ArticleID
	v.feedID = req.FeedID
	v.url = req.URL
	v.articleIndex = req.ArticleIndex
	v.settings = req.Settings
	v.status = StatusLoading
	v.loadStartTime = time.Now()
	v.lastUsedAt = time.Now().UnixMilli()
	page := v.page
	v.mu.Unlock()

	v.hooks.OnStatusChange(v, StatusLoading)
	v.logger.Debug().Str("url", security.RedactURL(req.URL)).Str("article_id", req.ArticleID).Msg("loading")

	domReady := make(chan struct{}, 1)
	failed := make(chan error, 1)

	go func() {
		waitCtx, waitCancel := context.WithTimeout(loadCtx, timeout)
		defer waitCancel()
		if err := page.Context(waitCtx).Navigate(req.URL); err != nil {
			if waitCtx.Err() != nil {
				// Treated as timeout, not failure - resolve optimistically below.
				return
			}
			failed <- err
			return
		}
		if err := page.Context(waitCtx).WaitLoad(); err != nil {
			if waitCtx.Err() != nil {
				return
			}
			// WaitLoad errors other than context cancellation are treated as
			// dom-ready anyway: partial content is acceptable (§4.1).
		}
		select {
		case domReady <- struct{}{}:
		default:
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-loadCtx.Done():
		// Caller issued stop() - ABORTED, silent success.
		v.finishLoad(StatusReady, nil)
		return nil
	case err := <-failed:
		verr := types.NewLoadFailedError(v.id, req.URL, err)
		v.finishLoad(StatusError, verr)
		v.hooks.OnLoadError(v, verr)
		return verr
	case <-domReady:
		v.finishLoad(StatusReady, nil)
		return nil
	case <-timer.C:
		// 30s timeout resolves optimistically (§4.1).
		v.finishLoad(StatusReady, nil)
		return nil
	}
}

func (v *View) finishLoad(status Status, loadErr error) {
	v.mu.Lock()
	v.status = status
	v.loadError = loadErr
	if status == StatusReady {
		v.hasLoadedOnce = true
	}
	v.cancelLoad = nil
	v.mu.Unlock()
	v.hooks.OnStatusChange(v, status)
}

// Stop cancels an in-flight load. ABORTED is silent (§4.1).
func (v *View) Stop() {
	v.mu.Lock()
	cancel := v.cancelLoad
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetActive transitions activity state. Idempotent. On active->inactive,
// mutes audio and pauses playing media; on inactive->active, unmutes and
// informs the page of activity state (§4.1).
func (v *View) SetActive(active bool) {
	v.mu.Lock()
	if v.isActive == active {
		v.mu.Unlock()
		return
	}
	v.isActive = active
	page := v.page
	v.mu.Unlock()

	if page == nil {
		return
	}
	script := `(active) => {
		document.querySelectorAll('video, audio').forEach(function(el) {
			el.muted = !active;
			if (!active && !el.paused) { el.pause(); }
		});
		window.__contentPoolActive = active;
	}`
	if _, err := page.Eval(script, active); err != nil {
		v.logger.Debug().Err(err).Bool("active", active).Msg("failed to apply activity state to page")
	}
}

// IsActive reports whether the View is currently the active slot occupant.
func (v *View) IsActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isActive
}

// SetBounds applies a bounds rectangle to the page's frame host.
func (v *View) SetBounds(b types.Bounds) {
	v.mu.Lock()
	v.bounds = b
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.W,
		Height: b.H,
	}); err != nil {
		v.logger.Debug().Err(err).Msg("failed to set viewport bounds")
	}
}

// SetVisible shows or hides the view at the given bounds.
func (v *View) SetVisible(show bool, b types.Bounds) {
	v.mu.Lock()
	v.isOffScreen = !show
	v.mu.Unlock()
	if show {
		v.SetBounds(b)
	} else {
		v.MoveOffScreen(b)
	}
}

// MoveOffScreen positions the view at a constant large-negative coordinate
// while preserving width/height, so render state (video, scroll) survives
// the swap instead of being torn down (§4.1, §9).
func (v *View) MoveOffScreen(current types.Bounds) {
	v.mu.Lock()
	v.isOffScreen = true
	v.isAtRenderPosition = false
	offscreen := types.Bounds{X: offScreenCoordinate, Y: offScreenCoordinate, W: current.W, H: current.H}
	v.bounds = offscreen
	v.mu.Unlock()
	v.logger.Debug().Msg("moved off-screen")
}

// SetRenderPosition places the view so exactly one pixel overlaps the
// visible rectangle, keeping the renderer rasterising it without making it
// visible to the user (§4.4).
func (v *View) SetRenderPosition(visible types.Bounds) {
	v.mu.Lock()
	v.isAtRenderPosition = true
	v.isOffScreen = false
	v.bounds = types.Bounds{X: visible.X + visible.W - 1, Y: visible.Y + visible.H - 1, W: visible.W, H: visible.H}
	v.mu.Unlock()
}

// ClearRenderPosition removes the render-position flag without changing
// placement otherwise (caller is expected to re-place the view).
func (v *View) ClearRenderPosition() {
	v.mu.Lock()
	v.isAtRenderPosition = false
	v.mu.Unlock()
}

// BringToFront raises the view's z-order above its siblings.
func (v *View) BringToFront() {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	if err := page.Activate(); err != nil {
		v.logger.Debug().Err(err).Msg("failed to bring view to front")
	}
}

// Focus gives the view's page keyboard focus.
func (v *View) Focus() {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	if _, err := page.Eval(`() => window.focus()`); err != nil {
		v.logger.Debug().Err(err).Msg("failed to focus view")
	}
}

// zoomFactorForLevel computes the clamped CSS zoom factor for an integer
// step level (§4.1: factor = 1.0 + 0.1*level, clamped to [0.25, 5.0]).
func zoomFactorForLevel(level int) (int, float64) {
	if level < zoomLevelMin {
		level = zoomLevelMin
	}
	if level > zoomLevelMax {
		level = zoomLevelMax
	}
	factor := 1.0 + 0.1*float64(level)
	factor = math.Max(zoomFactorMin, math.Min(zoomFactorMax, factor))
	return level, factor
}

// SetCssZoom applies a CSS zoom at the given integer level.
func (v *View) SetCssZoom(level int) {
	level, factor := zoomFactorForLevel(level)
	v.mu.Lock()
	v.cssZoomLevel = level
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	script := `(factor) => { document.documentElement.style.zoom = factor; }`
	if _, err := page.Eval(script, factor); err != nil {
		v.logger.Debug().Err(err).Int("level", level).Msg("failed to apply css zoom")
	}
}

// CssZoomLevel returns the view's current integer zoom step.
func (v *View) CssZoomLevel() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cssZoomLevel
}

// SetVisualZoomLevel applies device-emulation-based zoom (emulated
// viewport, preserving touch/pinch) instead of CSS zoom.
func (v *View) SetVisualZoomLevel(level int) {
	level, factor := zoomFactorForLevel(level)
	v.mu.Lock()
	v.cssZoomLevel = level
	b := v.bounds
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(float64(b.W) / factor),
		Height:            int(float64(b.H) / factor),
		DeviceScaleFactor: factor,
		Mobile:            false,
	}); err != nil {
		v.logger.Debug().Err(err).Msg("failed to apply visual zoom emulation")
	}
}

// SetVisualZoomMode toggles between CSS zoom (on=false) and
// device-emulation zoom (on=true). Visual-zoom mode re-applies emulation
// every time bounds change (§4.4 handles the re-apply call site).
func (v *View) SetVisualZoomMode(on bool) {
	v.mu.Lock()
	v.settings.VisualZoom = on
	level := v.cssZoomLevel
	v.mu.Unlock()
	if on {
		v.SetVisualZoomLevel(level)
	} else {
		v.SetCssZoom(level)
	}
}

// SetMobileMode toggles the mobile user-agent/viewport emulation.
func (v *View) SetMobileMode(on bool) {
	v.mu.Lock()
	v.settings.MobileMode = on
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: mobileOrDesktopUA(on),
	}); err != nil {
		v.logger.Debug().Err(err).Msg("failed to set mobile mode user agent")
	}
}

func mobileOrDesktopUA(mobile bool) string {
	if mobile {
		return "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36"
	}
	return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
}

// SetVideoFullscreen dispatches a synthetic resize event to the page and
// reports the transition through the OnVideoFullscreen hook. It does not
// change device emulation or bounds; on exit the Placement Controller
// (§4.4) re-applies visual-zoom emulation.
func (v *View) SetVideoFullscreen(on bool) {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return
	}
	script := `(on) => {
		if (on) {
			const el = document.querySelector('video, audio');
			if (el && el.requestFullscreen) { /* no-op: host controls bounds */ }
		}
		window.dispatchEvent(new Event('resize'));
	}`
	if _, err := page.Eval(script, on); err != nil {
		v.logger.Debug().Err(err).Bool("on", on).Msg("failed to toggle video fullscreen script state")
	}
	v.hooks.OnVideoFullscreen(v, on)
}

// LastUsedAt returns the unix-ms timestamp of the view's last load.
func (v *View) LastUsedAt() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsedAt
}

// Status returns the current state machine status.
func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// HasLoadedOnce reports the sticky latch consulted by the Pool for
// cache-hit decisions instead of raw Status (§4.1).
func (v *View) HasLoadedOnce() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasLoadedOnce
}

// InvalidateArticleIndex sets articleIndex to -1, per §3: valid only while
// the list identity it was assigned from is current. Used on feed refresh
// for every View except the active one.
func (v *View) InvalidateArticleIndex() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.articleIndex = -1
}

// IsLoadingStale reports whether a View stuck in loading has exceeded the
// given staleness age (used by prefetch recycling, §4.2).
func (v *View) IsLoadingStale(age time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status == StatusLoading && time.Since(v.loadStartTime) > age
}

// GoBack navigates the active View's history backward (§6).
func (v *View) GoBack() error {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return nil
	}
	return page.NavigateBack()
}

// GoForward navigates the active View's history forward (§6).
func (v *View) GoForward() error {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return nil
	}
	return page.NavigateForward()
}

// CanGoBack reports whether the View's history has an earlier entry (§6).
func (v *View) CanGoBack() bool {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return false
	}
	history, err := page.History()
	if err != nil {
		return false
	}
	return history.CurrentIndex > 0
}

// CanGoForward reports whether the View's history has a later entry (§6).
func (v *View) CanGoForward() bool {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return false
	}
	history, err := page.History()
	if err != nil {
		return false
	}
	return int(history.CurrentIndex) < len(history.Entries)-1
}

// Reload reloads the current document (§6).
func (v *View) Reload() error {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return nil
	}
	return page.Reload()
}

// URL returns the page's current URL (§6 getUrl).
func (v *View) URL() (string, error) {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return "", nil
	}
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// ExecuteJavaScript evaluates script in the page context and returns its
// JSON-decoded result (§6 executeJavaScript).
func (v *View) ExecuteJavaScript(script string) (string, error) {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return "", nil
	}
	res, err := page.Eval(script)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

// Screenshot captures a PNG screenshot of the current surface (used by
// capturePrefetched, §6).
func (v *View) Screenshot() ([]byte, error) {
	v.mu.Lock()
	page := v.page
	v.mu.Unlock()
	if page == nil {
		return nil, nil
	}
	return page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
}
