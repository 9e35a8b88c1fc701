package pool

import "github.com/fluent-reader/contentpool/internal/view"

// CaptureResult is the response to capturePrefetched (§6): either the
// target is still loading, or a screenshot of its current surface.
type CaptureResult struct {
	Loading    bool
	Screenshot []byte
}

// GoBack navigates the active View's history backward.
func (p *Pool) GoBack() error {
	var err error
	p.submit(func() {
		if v := p.activeView(); v != nil {
			err = v.GoBack()
		}
	})
	return err
}

// GoForward navigates the active View's history forward.
func (p *Pool) GoForward() error {
	var err error
	p.submit(func() {
		if v := p.activeView(); v != nil {
			err = v.GoForward()
		}
	})
	return err
}

// CanGoBack reports whether the active View's history has an earlier entry.
func (p *Pool) CanGoBack() bool {
	var can bool
	p.submit(func() {
		if v := p.activeView(); v != nil {
			can = v.CanGoBack()
		}
	})
	return can
}

// CanGoForward reports whether the active View's history has a later entry.
func (p *Pool) CanGoForward() bool {
	var can bool
	p.submit(func() {
		if v := p.activeView(); v != nil {
			can = v.CanGoForward()
		}
	})
	return can
}

// Reload reloads the active View.
func (p *Pool) Reload() error {
	var err error
	p.submit(func() {
		if v := p.activeView(); v != nil {
			err = v.Reload()
		}
	})
	return err
}

// Stop cancels an in-flight load on the active View.
func (p *Pool) Stop() {
	p.submit(func() {
		if v := p.activeView(); v != nil {
			v.Stop()
		}
	})
}

// GetURL returns the active View's current URL.
func (p *Pool) GetURL() (string, error) {
	var url string
	var err error
	p.submit(func() {
		if v := p.activeView(); v != nil {
			url, err = v.URL()
		}
	})
	return url, err
}

// ExecuteJavaScript evaluates script on the active View.
func (p *Pool) ExecuteJavaScript(script string) (string, error) {
	var result string
	var err error
	p.submit(func() {
		if v := p.activeView(); v != nil {
			result, err = v.ExecuteJavaScript(script)
		}
	})
	return result, err
}

// CapturePrefetched returns a screenshot of the View holding articleID, or
// reports it is still loading, or nil if no View holds it.
func (p *Pool) CapturePrefetched(articleID string) (*CaptureResult, error) {
	var result *CaptureResult
	var err error
	p.submit(func() {
		v := p.findByArticle(articleID)
		if v == nil {
			return
		}
		if v.Status() == view.StatusLoading {
			result = &CaptureResult{Loading: true}
			return
		}
		shot, shotErr := v.Screenshot()
		if shotErr != nil {
			err = shotErr
			return
		}
		result = &CaptureResult{Screenshot: shot}
	})
	return result, err
}

// ViewStatus is a read-only snapshot exposed by GetPoolStatus, used by the
// optional debug surface (§4.9).
type ViewStatus struct {
	ID                 string
	Status             string
	ArticleID          string
	FeedID             string
	IsActive           bool
	IsAtRenderPosition bool
	IsOffScreen        bool
	HasLoadedOnce      bool
}

// PoolStatus is the read-only report the debug HTTP surface exposes.
type PoolStatus struct {
	Views               []ViewStatus
	ActiveViewID        string
	ReadingDirection    string
	CurrentArticleIndex int
	ArticleListLength   int
	MenuKey             string
	Generation          int
}

// GetPoolStatus returns a read-only snapshot of pool and view state for
// the debug HTTP surface (§4.9). It never exposes View internals beyond
// this projection.
func (p *Pool) GetPoolStatus() PoolStatus {
	var status PoolStatus
	p.submit(func() {
		status.ActiveViewID = p.activeViewID
		status.ReadingDirection = string(p.readingDirection)
		status.CurrentArticleIndex = p.currentArticleIndex
		status.ArticleListLength = p.articleListLength
		status.MenuKey = p.menuKey
		status.Generation = p.generation
		for _, v := range p.views {
			snap := v.Snapshot()
			status.Views = append(status.Views, ViewStatus{
				ID:                 snap.ID,
				Status:             snap.Status.String(),
				ArticleID:          snap.ArticleID,
				FeedID:             snap.FeedID,
				IsActive:           snap.IsActive,
				IsAtRenderPosition: snap.IsAtRenderPosition,
				IsOffScreen:        snap.IsOffScreen,
				HasLoadedOnce:      snap.HasLoadedOnce,
			})
		}
	})
	return status
}
