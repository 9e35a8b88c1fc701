package pool

import (
	"math"
	"time"

	"github.com/fluent-reader/contentpool/internal/types"
)

const (
	zoomLevelMin  = -6
	zoomLevelMax  = 40
	zoomFactorMin = 0.25
	zoomFactorMax = 5.0

	zoomPendingConfirmWindow = 100 * time.Millisecond
)

func clampZoomLevel(level int) int {
	if level < zoomLevelMin {
		return zoomLevelMin
	}
	if level > zoomLevelMax {
		return zoomLevelMax
	}
	return level
}

func zoomFactorForLevelLocal(level int) float64 {
	factor := 1.0 + 0.1*float64(level)
	return math.Max(zoomFactorMin, math.Min(zoomFactorMax, factor))
}

func levelForZoomFactor(factor float64) int {
	return clampZoomLevel(int(math.Round((factor - 1.0) / 0.1)))
}

func (p *Pool) setZoomLevelFromFactor(feedID string, factor float64) {
	if feedID == "" {
		return
	}
	if _, ok := p.zoomLevels[feedID]; !ok {
		p.zoomLevels[feedID] = levelForZoomFactor(factor)
	}
}

// zoomGuarded reports whether a new zoom request must be refused: a sync
// already in progress, or within the 100ms pending-confirm window (§4.7).
func (p *Pool) zoomGuarded() bool {
	if p.zoomSyncInProgress {
		return true
	}
	return time.Now().Before(p.zoomPendingConfirmUntil)
}

// applyZoomToFeed applies level to the active View then synchronises every
// other View sharing the same feedId (§4.7). Returns ErrZoomSyncInProgress
// or ErrZoomPendingConfirm if guarded.
func (p *Pool) applyZoomToFeed(feedID string, level int) error {
	if p.zoomGuarded() {
		if p.zoomSyncInProgress {
			return types.ErrZoomSyncInProgress
		}
		return types.ErrZoomPendingConfirm
	}

	level = clampZoomLevel(level)
	p.zoomSyncInProgress = true
	defer func() {
		p.zoomSyncInProgress = false
		p.zoomPendingConfirmUntil = time.Now().Add(zoomPendingConfirmWindow)
	}()

	p.zoomLevels[feedID] = level

	active := p.activeView()
	var activeID string
	for _, v := range p.views {
		snap := v.Snapshot()
		if snap.FeedID != feedID {
			continue
		}
		if snap.VisualZoomOn {
			v.SetVisualZoomLevel(level)
		} else {
			v.SetCssZoom(level)
		}
		if active != nil && v.ID() == active.ID() {
			activeID = v.ID()
		}
	}

	p.hooks.OnZoomChanged(types.ZoomChangedEvent{Level: level, FeedID: feedID, ViewID: activeID})
	return nil
}

// SetZoomFactor implements the synchronous setZoomFactor(f) entry point.
func (p *Pool) SetZoomFactor(feedID string, factor float64) error {
	var err error
	p.submit(func() {
		err = p.applyZoomToFeed(feedID, levelForZoomFactor(factor))
	})
	return err
}

// SetCssZoom implements the setCssZoom(level) entry point.
func (p *Pool) SetCssZoom(feedID string, level int) error {
	var err error
	p.submit(func() {
		err = p.applyZoomToFeed(feedID, level)
	})
	return err
}

// ZoomStep implements zoomStep(+-1).
func (p *Pool) ZoomStep(feedID string, delta int) error {
	var err error
	p.submit(func() {
		err = p.applyZoomToFeed(feedID, p.zoomLevels[feedID]+delta)
	})
	return err
}

// ZoomReset implements zoomReset().
func (p *Pool) ZoomReset(feedID string) error {
	var err error
	p.submit(func() {
		err = p.applyZoomToFeed(feedID, 0)
	})
	return err
}

// SetVisualZoomMode implements setVisualZoomMode(bool) for the active feed.
func (p *Pool) SetVisualZoomMode(feedID string, on bool) {
	p.submit(func() {
		level := p.zoomLevels[feedID]
		for _, v := range p.views {
			if v.Snapshot().FeedID != feedID {
				continue
			}
			v.SetVisualZoomMode(on)
			if on {
				v.SetVisualZoomLevel(level)
			}
		}
	})
}

// SetMobileMode implements setMobileMode(bool) for the active View only.
func (p *Pool) SetMobileMode(on bool) {
	p.submit(func() {
		if v := p.activeView(); v != nil {
			v.SetMobileMode(on)
		}
	})
}
