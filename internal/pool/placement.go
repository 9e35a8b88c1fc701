package pool

import (
	"time"

	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

// applyPlacement realises the three logical slots of §4.4: the active View
// takes the visible bounds at the top of z-order, the View holding the
// next-in-direction article (if it has loaded once) takes the
// render-position slot, and every other View is moved off-screen.
func (p *Pool) applyPlacement() {
	active := p.activeView()
	if active == nil {
		return
	}

	nextView := p.nextInDirectionView()

	for _, v := range p.views {
		switch {
		case v.ID() == active.ID():
			v.SetVisible(true, p.bounds)
			v.BringToFront()
			v.Focus()
			v.ClearRenderPosition()
		case nextView != nil && v.ID() == nextView.ID():
			v.SetRenderPosition(p.bounds)
			p.renderPositionViewID = v.ID()
		default:
			v.MoveOffScreen(p.bounds)
			if v.ID() == p.renderPositionViewID {
				p.renderPositionViewID = ""
			}
		}
	}

	if nextView == nil {
		p.renderPositionViewID = ""
	}
}

// nextInDirectionView returns the View holding the article most likely to
// be read next, if it has completed at least one load.
func (p *Pool) nextInDirectionView() *view.View {
	var nextIndex int
	switch p.readingDirection {
	case types.DirectionForward:
		nextIndex = p.currentArticleIndex + 1
	case types.DirectionBackward:
		nextIndex = p.currentArticleIndex - 1
	default:
		nextIndex = p.currentArticleIndex + 1
	}
	for _, v := range p.views {
		snap := v.Snapshot()
		if snap.ArticleIndex == nextIndex && snap.HasLoadedOnce {
			return v
		}
	}
	return nil
}

// applyBoundsToView sets bounds on a single View, used when it first
// becomes active before the full placement pass runs.
func (p *Pool) applyBoundsToView(v *view.View, b types.Bounds) {
	v.SetBounds(b)
}

// SetBounds implements the setBounds(x,y,w,h) entry point (§4.4): every
// View receives the new size, and a visual-zoom View re-applies emulation.
func (p *Pool) SetBounds(b types.Bounds) {
	p.submit(func() {
		p.bounds = b
		for _, v := range p.views {
			snap := v.Snapshot()
			switch {
			case v.ID() == p.activeViewID:
				v.SetBounds(b)
			case v.ID() == p.renderPositionViewID:
				v.SetRenderPosition(b)
			default:
				v.MoveOffScreen(b)
			}
			if snap.VisualZoomOn && snap.Status == view.StatusReady {
				v.SetVisualZoomLevel(v.CssZoomLevel())
			}
		}
	})
}

// SetVisibility implements setVisibility(bool): hiding moves every View
// off-screen; showing re-applies placement.
func (p *Pool) SetVisibility(visible bool) {
	p.submit(func() {
		p.visible = visible
		if visible {
			p.applyPlacement()
			return
		}
		for _, v := range p.views {
			v.MoveOffScreen(p.bounds)
		}
		p.renderPositionViewID = ""
	})
}

// ToggleDebugPreview temporarily maximises the render-position View to
// full visible bounds for inspection (§4.4). Debounced to 200ms.
func (p *Pool) ToggleDebugPreview() {
	p.submit(func() {
		if time.Since(p.lastDebugPreviewToggle) < debugPreviewDebounce {
			return
		}
		p.lastDebugPreviewToggle = time.Now()
		p.debugPreviewActive = !p.debugPreviewActive

		rv := p.renderPositionView()
		if rv == nil {
			return
		}
		if p.debugPreviewActive {
			rv.SetBounds(p.bounds)
		} else {
			rv.SetRenderPosition(p.bounds)
		}
	})
}

// handleVideoFullscreen handles fullscreen transitions of the active View
// (§4.4): on enter and on exit it has the View dispatch a resize and
// reports the change to the host. On exit with visual zoom on, it re-applies
// emulation 50ms later. It does not disable emulation or change the View's
// bounds itself.
func (p *Pool) handleVideoFullscreen(v *view.View, on bool) {
	if v.ID() != p.activeViewID {
		return
	}
	p.videoFullscreen = on
	if on {
		v.SetVideoFullscreen(true)
		p.hooks.OnVideoFullscreen(true)
		return
	}
	v.SetVideoFullscreen(false)
	snap := v.Snapshot()
	if snap.VisualZoomOn {
		go func() {
			time.Sleep(50 * time.Millisecond)
			p.submitAsync(func() {
				if av := p.activeView(); av != nil && av.ID() == v.ID() {
					av.SetVisualZoomLevel(av.CssZoomLevel())
				}
			})
		}()
	}
	p.hooks.OnVideoFullscreen(false)
}
