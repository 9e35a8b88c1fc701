package pool

import (
	"time"

	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

// appOwnedKeys is the hard-coded "app-owned" key set of §4.6 that is
// swallowed and forwarded to the host UI in normal mode.
var appOwnedKeys = map[string]bool{
	"m": true, "w": true, "p": true, "h": true,
	"+": true, "-": true, "=": true, "_": true, "#": true,
	"Escape": true, "ArrowLeft": true, "ArrowRight": true,
}

// videoFullscreenPassthroughKeys pass through to the page regardless of
// mode while a video is fullscreen (§4.6).
var videoFullscreenPassthroughKeys = map[string]bool{
	"m": true, "ArrowLeft": true, "ArrowRight": true, "ArrowUp": true, "ArrowDown": true,
}

const focusRestoreDelay = 120 * time.Millisecond

// routeInput implements the Focus & Input Router of §4.6.
func (p *Pool) routeInput(v *view.View, evt types.InputEvent) {
	evt.ViewID = v.ID()

	if p.videoFullscreen && v.ID() == p.activeViewID && videoFullscreenPassthroughKeys[evt.Key] {
		return
	}

	if v.ID() != p.activeViewID {
		p.handleBackgroundViewInput(v, evt)
		return
	}

	if p.inputMode {
		if evt.Key == "Escape" || (evt.Key == "i" && evt.Ctrl) {
			p.hooks.OnInput(evt)
		}
		return
	}

	if appOwnedKeys[evt.Key] {
		p.hooks.OnInput(evt)
	}
}

// handleBackgroundViewInput implements the focus-theft mitigation of
// §4.6: an arrow key-down on a background View means focus was stolen
// mid-prefetch; forward it to the active View and refocus.
func (p *Pool) handleBackgroundViewInput(v *view.View, evt types.InputEvent) {
	if evt.Key != "ArrowLeft" && evt.Key != "ArrowRight" {
		return
	}
	active := p.activeView()
	if active == nil {
		return
	}
	forwarded := evt
	forwarded.Forwarded = true
	forwarded.ViewID = active.ID()
	p.hooks.OnInput(forwarded)
	active.Focus()
}

// handleFocusTheftSignal implements the refocus-after-navigation-signal
// half of §4.6's mitigation: any time a background View fires a
// navigation-lifecycle signal (modelled here by dom-ready), refocus the
// active View after a short delay if it is ready.
func (p *Pool) handleFocusTheftSignal(v *view.View) {
	if v.ID() == p.activeViewID {
		return
	}
	active := p.activeView()
	if active == nil || active.Status() != view.StatusReady {
		return
	}
	go func() {
		time.Sleep(focusRestoreDelay)
		p.submitAsync(func() {
			if av := p.activeView(); av != nil && av.ID() == active.ID() && av.Status() == view.StatusReady {
				av.Focus()
			}
		})
	}()
}

// SetInputMode toggles input-mode routing (§4.6). Navigate resets it on
// every article change.
func (p *Pool) SetInputMode(on bool) {
	p.submit(func() {
		p.inputMode = on
	})
}

// OnHostBlur records that the active View had focus when the host window
// loses focus, per §4.6.
func (p *Pool) OnHostBlur() {
	p.submit(func() {
		if v := p.activeView(); v != nil && v.Status() == view.StatusReady {
			p.hadFocusBeforeBlur = true
		}
	})
}

// OnHostFocus restores focus to the active View after a short delay, per
// §4.6, if it had focus before the host lost it.
func (p *Pool) OnHostFocus() {
	p.submit(func() {
		if !p.hadFocusBeforeBlur {
			return
		}
		p.hadFocusBeforeBlur = false
		go func() {
			time.Sleep(focusRestoreDelay)
			p.submitAsync(func() {
				if v := p.activeView(); v != nil {
					v.Focus()
				}
			})
		}()
	})
}
