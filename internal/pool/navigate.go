package pool

import (
	"context"
	"math"
	"time"

	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

// Navigate implements §4.2's navigate operation: direction tracking,
// cache-hit short-circuit, cache-miss view acquisition, and the
// render-position/prefetch follow-up.
func (p *Pool) Navigate(ctx context.Context, req types.NavigateRequest) (bool, error) {
	var ok bool
	var loadErr error
	p.submit(func() {
		p.awaitingFirstNavigationAfterNuke = false
		p.menuKey = req.MenuKey
		p.inputMode = false
		p.cancelPrefetchLocked()
		p.updateReadingDirection(req.Index, req.ListLength)
		p.currentArticleIndex = req.Index
		p.articleListLength = req.ListLength

		if hit := p.findByArticle(req.ArticleID); hit != nil && hit.HasLoadedOnce() && !hit.Snapshot().FullContent {
			p.activateCacheHit(hit, req)
			ok = true
			return
		}

		p.setZoomLevelFromFactor(req.FeedID, req.Settings.ZoomFactor)

		chosen := p.getOrCreateView(ctx, req.ArticleID)
		if chosen == nil {
			loadErr = types.NewPoolExhaustedError("no view available for navigate")
			return
		}

		if prev := p.activeView(); prev != nil && prev.ID() != chosen.ID() {
			prev.SetActive(false)
			if prev.Status() == view.StatusLoading {
				prev.Stop()
			}
		}

		p.activeViewID = chosen.ID()
		chosen.SetActive(true)
		p.applyBoundsToView(chosen, p.bounds)

		generationAtStart := p.generation
		go func() {
			loadCtx := ctx
			err := chosen.Load(loadCtx, p.cfg.ViewLoadTimeout, view.LoadRequest{
				URL:          req.URL,
				ArticleID:    req.ArticleID,
				FeedID:       req.FeedID,
				Settings:     toViewSettings(req.Settings),
				ArticleIndex: req.Index,
			})
			p.submitAsync(func() {
				p.onNavigateLoadResolved(chosen, generationAtStart, req, err)
			})
		}()
		ok = true
	})
	return ok, loadErr
}

func (p *Pool) onNavigateLoadResolved(v *view.View, generationAtStart int, req types.NavigateRequest, loadErr error) {
	if p.generation != generationAtStart {
		return
	}
	// Re-check the view is still active - the user may have navigated
	// away while this load was in flight (§4.2 step 7).
	if p.activeViewID != v.ID() {
		return
	}
	if loadErr != nil {
		return
	}

	if p.visible && p.bounds.W > 0 && p.bounds.H > 0 {
		p.applyPlacement()
	}

	level := p.zoomLevels[req.FeedID]
	p.hooks.OnZoomChanged(types.ZoomChangedEvent{Level: level, FeedID: req.FeedID, ViewID: v.ID()})
	p.hooks.OnNavigationComplete(req.ArticleID)

	p.scheduler.schedule(req.Index, req.ListLength, req.MenuKey)
}

// activateCacheHit implements §4.2 step 5.
func (p *Pool) activateCacheHit(v *view.View, req types.NavigateRequest) {
	if prev := p.activeView(); prev != nil && prev.ID() != v.ID() {
		prev.SetActive(false)
	}
	p.activeViewID = v.ID()
	v.SetActive(true)

	level := p.zoomLevels[req.FeedID]
	wantLevel := int(math.Round((req.Settings.ZoomFactor - 1.0) / 0.1))
	if math.Abs(req.Settings.ZoomFactor-zoomFactorForLevelLocal(level)) > 0.01 {
		p.applyZoomToFeed(req.FeedID, wantLevel)
	}

	if p.visible && p.bounds.W > 0 && p.bounds.H > 0 {
		p.applyPlacement()
	}
	p.scheduler.schedule(req.Index, req.ListLength, req.MenuKey)

	p.hooks.OnNavigationComplete(req.ArticleID)
}

// updateReadingDirection implements §4.2 step 3.
func (p *Pool) updateReadingDirection(index, listLength int) {
	if p.articleListLength == 0 || p.menuKeyChangedForDirection() {
		switch {
		case index == 0:
			p.readingDirection = types.DirectionForward
		case listLength > 0 && index == listLength-1:
			p.readingDirection = types.DirectionBackward
		default:
			p.readingDirection = types.DirectionUnknown
		}
		return
	}

	switch {
	case index == 0:
		p.readingDirection = types.DirectionForward
	case listLength > 0 && index == listLength-1:
		p.readingDirection = types.DirectionBackward
	case index > p.currentArticleIndex:
		p.readingDirection = types.DirectionForward
	case index < p.currentArticleIndex:
		p.readingDirection = types.DirectionBackward
	}
}

// menuKeyChangedForDirection reports whether this is effectively a fresh
// list (first navigation after construction or nuke).
func (p *Pool) menuKeyChangedForDirection() bool {
	return p.currentArticleIndex == 0 && p.articleListLength == 0
}

func toViewSettings(s types.Settings) view.Settings {
	return view.Settings{
		ZoomFactor: s.ZoomFactor,
		MobileMode: s.MobileMode,
		VisualZoom: s.VisualZoom,
	}
}

// Nuke implements the list-nuke operation (§4.4, §9): every View is
// destroyed, generation increments, direction resets to unknown.
func (p *Pool) Nuke(ctx context.Context) {
	p.submit(func() {
		for _, v := range p.views {
			v.Destroy()
		}
		p.views = nil
		p.viewByID = make(map[string]*view.View)
		p.activeViewID = ""
		p.renderPositionViewID = ""
		p.currentArticleIndex = 0
		p.articleListLength = 0
		p.readingDirection = types.DirectionUnknown
		p.generation++
		p.awaitingFirstNavigationAfterNuke = true
		p.scheduler.cancel()
		p.protectedArticleIDs = make(map[string]bool)
		p.pendingPrefetchArticleIDs = make(map[string]bool)
	})
}

// OnListChanged is an alias the UI uses for the same nuke semantics when a
// list changes without a full session reset.
func (p *Pool) OnListChanged(ctx context.Context) {
	p.Nuke(ctx)
}

// OnFeedRefreshed implements the feed-refresh lifecycle of §3: the list
// identity is unchanged (indices may have been reshuffled), so Views keep
// their loaded content but every non-active View's articleIndex is
// invalidated; the active View's index is preserved.
func (p *Pool) OnFeedRefreshed() {
	p.submit(func() {
		for _, v := range p.views {
			if v.ID() == p.activeViewID {
				continue
			}
			v.InvalidateArticleIndex()
		}
	})
}

// SetReadingDirection lets the UI override the inferred direction.
func (p *Pool) SetReadingDirection(dir types.Direction) {
	p.submit(func() {
		p.readingDirection = dir
	})
}

// debounce window shared by the debug preview toggle (§4.4).
const debugPreviewDebounce = 200 * time.Millisecond
