// Package pool implements the Content View Pool: the set of headless
// browsing surfaces (Views) a reader cycles through as the user navigates
// an article list, plus the prefetch scheduler, placement controller, and
// focus/input router that arbitrate them.
//
// All Pool and View state mutation happens on a single loop goroutine,
// driven by a buffered command channel - the same single-owner-goroutine
// mailbox pattern the browsing-surface pool this package is adapted from
// uses for its free-list bookkeeping. Suspending work (page loads, network
// fetches) runs on ordinary goroutines that post their result back onto
// the loop instead of touching Pool/View fields directly.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluent-reader/contentpool/internal/config"
	"github.com/fluent-reader/contentpool/internal/translate"
	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

// EventHooks is the set of callbacks the Pool uses to publish events to the
// host UI (§6, §4.9). A Bridge implements this to turn calls into its
// subscriber-callback registry.
type EventHooks interface {
	OnNavigationComplete(articleID string)
	OnPrefetchStatus(report types.StatusReport)
	OnZoomChanged(evt types.ZoomChangedEvent)
	OnInput(evt types.InputEvent)
	OnVideoFullscreen(on bool)
	OnError(evt types.ErrorEvent)
}

type command struct {
	fn   func()
	done chan struct{}
}

// Pool owns every View and arbitrates activation, placement, prefetch, and
// zoom. Construct with New; the zero value is not usable.
type Pool struct {
	cfg     *config.Config
	browser *rod.Browser
	hooks   EventHooks
	logger  zerolog.Logger

	cmdCh   chan command
	closeCh chan struct{}
	closed  bool

	views    []*view.View
	viewByID map[string]*view.View

	activeViewID         string
	renderPositionViewID string

	currentArticleIndex int
	articleListLength   int
	readingDirection    types.Direction
	menuKey             string
	generation          int

	awaitingFirstNavigationAfterNuke bool

	zoomLevels              map[string]int
	zoomSyncInProgress      bool
	zoomPendingConfirmUntil time.Time

	protectedArticleIDs       map[string]bool
	pendingPrefetchArticleIDs map[string]bool

	scheduler *scheduler

	bounds  types.Bounds
	visible bool

	inputMode              bool
	videoFullscreen        bool
	debugPreviewActive     bool
	lastDebugPreviewToggle time.Time
	hadFocusBeforeBlur     bool

	nextViewSeq int

	// bridgeRequestPrefetchInfo is wired by the Bridge at construction time
	// so the scheduler can ask the host UI for prefetch content without
	// the pool package importing the bridge package.
	bridgeRequestPrefetchInfo func(articleIndex int, menuKey string)

	// translationSvc, if set, is used by prefetchFullContent (§4.2) to
	// translate title + body before rendering the synthetic document.
	translationSvc *translate.Service
}

// SetPrefetchInfoRequester wires the callback the scheduler uses to ask
// the host UI for prefetch content for a given article index.
func (p *Pool) SetPrefetchInfoRequester(fn func(articleIndex int, menuKey string)) {
	p.submit(func() {
		p.bridgeRequestPrefetchInfo = fn
	})
}

// New constructs a Pool bound to a single shared browser and starts its
// loop goroutine.
func New(cfg *config.Config, browser *rod.Browser, hooks EventHooks) *Pool {
	p := &Pool{
		cfg:                       cfg,
		browser:                   browser,
		hooks:                     hooks,
		logger:                    log.With().Str("component", "pool").Logger(),
		cmdCh:                     make(chan command, 64),
		closeCh:                   make(chan struct{}),
		viewByID:                  make(map[string]*view.View),
		readingDirection:          types.DirectionUnknown,
		zoomLevels:                make(map[string]int),
		protectedArticleIDs:       make(map[string]bool),
		pendingPrefetchArticleIDs: make(map[string]bool),
		visible:                   true,
	}
	p.scheduler = newScheduler(p)
	go p.loop()
	return p
}

func (p *Pool) loop() {
	for {
		select {
		case cmd := <-p.cmdCh:
			cmd.fn()
			close(cmd.done)
		case <-p.closeCh:
			return
		}
	}
}

// submit runs fn on the loop goroutine and blocks until it completes.
func (p *Pool) submit(fn func()) {
	done := make(chan struct{})
	select {
	case p.cmdCh <- command{fn: fn, done: done}:
		<-done
	case <-p.closeCh:
	}
}

// submitAsync enqueues fn without the caller waiting - used for
// fire-and-forget operations and for suspending work reporting completion.
func (p *Pool) submitAsync(fn func()) {
	go func() {
		done := make(chan struct{})
		select {
		case p.cmdCh <- command{fn: fn, done: done}:
			<-done
		case <-p.closeCh:
		}
	}()
}

// Close tears down every View in parallel (bounded) and stops the loop.
func (p *Pool) Close(ctx context.Context) error {
	var viewsToClose []*view.View
	p.submit(func() {
		viewsToClose = append(viewsToClose, p.views...)
		p.closed = true
	})

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, v := range viewsToClose {
		v := v
		eg.Go(func() error {
			v.Destroy()
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
				return nil
			}
		})
	}
	err := eg.Wait()
	close(p.closeCh)
	return err
}

func (p *Pool) newViewID() string {
	p.nextViewSeq++
	return fmt.Sprintf("view-%d", p.nextViewSeq)
}

// createView builds a new View bound to this Pool's hooks adapter and
// registers it.
func (p *Pool) createView(ctx context.Context) *view.View {
	id := p.newViewID()
	v := view.New(id, p.browser, &poolViewHooks{pool: p})
	if err := v.Create(ctx); err != nil {
		p.logger.Error().Err(err).Str("view_id", id).Msg("failed to create view surface")
	}
	p.views = append(p.views, v)
	p.viewByID[id] = v
	return v
}

// findByArticle returns the View currently bound to articleID, if any.
func (p *Pool) findByArticle(articleID string) *view.View {
	for _, v := range p.views {
		if v.Snapshot().ArticleID == articleID {
			return v
		}
	}
	return nil
}

func (p *Pool) activeView() *view.View {
	if p.activeViewID == "" {
		return nil
	}
	return p.viewByID[p.activeViewID]
}

func (p *Pool) renderPositionView() *view.View {
	if p.renderPositionViewID == "" {
		return nil
	}
	return p.viewByID[p.renderPositionViewID]
}

// getOrCreateView implements §4.5's navigate-path selection: existing
// match, else an empty View, else create-if-below-limit, else recycle.
func (p *Pool) getOrCreateView(ctx context.Context, articleID string) *view.View {
	if v := p.findByArticle(articleID); v != nil {
		return v
	}
	for _, v := range p.views {
		if v.Status() == view.StatusEmpty {
			return v
		}
	}
	if len(p.views) < p.cfg.PoolSize {
		return p.createView(ctx)
	}
	return p.findRecyclableView(nil)
}

// findFreeView implements the prefetch-path selection (§4.5): empty
// non-active, else create-new-if-below-limit, else an LRU non-active
// candidate that satisfies the non-recyclable predicates.
func (p *Pool) findFreeView(ctx context.Context, excludeArticleIndices map[int]bool) *view.View {
	for _, v := range p.views {
		if v.Status() == view.StatusEmpty && v.ID() != p.activeViewID {
			return v
		}
	}
	if len(p.views) < p.cfg.PoolSize {
		return p.createView(ctx)
	}
	return p.findRecyclableView(excludeArticleIndices)
}

// findRecyclableView implements the scoring in §4.5: empty/no-article
// scores lowest, then error, then LRU by age. Views that are active,
// non-stale loading, hold a protected/pending articleId, or hold a ready
// target of the current prefetch cycle are never returned.
func (p *Pool) findRecyclableView(protectedIndices map[int]bool) *view.View {
	var best *view.View
	bestScore := int64(0)
	bestSet := false

	for _, v := range p.views {
		if v.ID() == p.activeViewID {
			continue
		}
		snap := v.Snapshot()
		if snap.Status == view.StatusLoading && !v.IsLoadingStale(p.cfg.StaleLoadAge) {
			continue
		}
		if snap.ArticleID != "" {
			if p.protectedArticleIDs[snap.ArticleID] || p.pendingPrefetchArticleIDs[snap.ArticleID] {
				continue
			}
			if protectedIndices != nil && protectedIndices[snap.ArticleIndex] && snap.Status == view.StatusReady {
				continue
			}
		}

		var score int64
		switch {
		case snap.ArticleID == "":
			score = -1000
		case snap.Status == view.StatusError:
			score = -900
		default:
			score = snap.LastUsedAt
		}

		if !bestSet || score < bestScore {
			best = v
			bestScore = score
			bestSet = true
		}
	}
	return best
}

// poolViewHooks adapts view.Hooks callbacks into Pool loop commands so
// every callback still runs on the single owner goroutine.
type poolViewHooks struct {
	pool *Pool
}

func (h *poolViewHooks) OnStatusChange(v *view.View, status view.Status) {
	h.pool.submitAsync(func() {
		h.pool.handleViewStatusChange(v, status)
	})
}

func (h *poolViewHooks) OnDOMReady(v *view.View) {
	h.pool.submitAsync(func() {
		h.pool.handleFocusTheftSignal(v)
	})
}

func (h *poolViewHooks) OnLoadError(v *view.View, err error) {
	h.pool.submitAsync(func() {
		snap := v.Snapshot()
		h.pool.hooks.OnError(types.ErrorEvent{ArticleID: snap.ArticleID, Message: err.Error()})
	})
}

func (h *poolViewHooks) OnVideoFullscreen(v *view.View, on bool) {
	h.pool.submitAsync(func() {
		h.pool.handleVideoFullscreen(v, on)
	})
}

func (h *poolViewHooks) OnInput(v *view.View, evt types.InputEvent) {
	h.pool.submitAsync(func() {
		h.pool.routeInput(v, evt)
	})
}

func (p *Pool) handleViewStatusChange(v *view.View, status view.Status) {
	if status == view.StatusReady {
		p.scheduler.onViewReady(v)
	}
}
