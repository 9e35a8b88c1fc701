package pool

import (
	"context"
	"strconv"
	"time"

	"github.com/fluent-reader/contentpool/internal/types"
	"github.com/fluent-reader/contentpool/internal/view"
)

// scheduler implements the cascaded Prefetch Scheduler of §4.3: it
// determines targets in priority order from the current index/direction,
// requests prefetch info for one target at a time, and advances to the
// next only when the previous resolves (success or failure) - bounding
// concurrent background work to one load at a time.
type scheduler struct {
	pool *Pool

	targets         []int
	completed       map[int]bool
	queue           []int
	loadingIndex    int
	loadingHasValue bool
	menuKey         string
	delayTimer      *time.Timer
}

func newScheduler(p *Pool) *scheduler {
	return &scheduler{pool: p, completed: make(map[int]bool)}
}

// determinePrefetchTargets implements §4.3's priority ordering, omitting
// out-of-range entries.
func determinePrefetchTargets(direction types.Direction, index, listLength int) []int {
	var candidates []int
	switch direction {
	case types.DirectionForward:
		candidates = []int{index + 1, index + 2, index + 3, index - 1}
	case types.DirectionBackward:
		candidates = []int{index - 1, index - 2, index - 3, index + 1}
	default:
		candidates = []int{index + 1, index - 1, index + 2, index - 2}
	}

	targets := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if c >= 0 && c < listLength {
			targets = append(targets, c)
		}
	}
	return targets
}

// schedule implements executePrefetch (§4.3 steps 1-3).
func (s *scheduler) schedule(index, listLength int, menuKey string) {
	p := s.pool
	if !p.cfg.PrefetchEnabled || p.awaitingFirstNavigationAfterNuke {
		return
	}

	s.cancelLocked()
	s.targets = determinePrefetchTargets(p.readingDirection, index, listLength)
	s.menuKey = menuKey
	s.completed = make(map[int]bool)

	p.protectedArticleIDs = make(map[string]bool)
	p.pendingPrefetchArticleIDs = make(map[string]bool)
	if active := p.activeView(); active != nil {
		if aid := active.Snapshot().ArticleID; aid != "" {
			p.protectedArticleIDs[aid] = true
		}
	}

	for _, v := range p.views {
		snap := v.Snapshot()
		for _, t := range s.targets {
			if snap.ArticleIndex == t && snap.HasLoadedOnce {
				s.completed[t] = true
			}
		}
	}

	s.queue = nil
	for _, t := range s.targets {
		if !s.completed[t] {
			s.queue = append(s.queue, t)
		}
	}

	s.publishStatus()
	s.advanceCascade()
}

// advanceCascade requests info for the next queued target (cascaded mode
// default: concurrency 1). Non-cascaded mode, when configured, requests
// every remaining target at once.
func (s *scheduler) advanceCascade() {
	p := s.pool
	if len(s.queue) == 0 {
		return
	}
	if p.cfg.PrefetchCascaded {
		if s.loadingHasValue {
			return
		}
		next := s.queue[0]
		s.loadingIndex = next
		s.loadingHasValue = true
		p.requestPrefetchInfo(next, s.menuKey)
		return
	}
	for _, t := range s.queue {
		p.requestPrefetchInfo(t, s.menuKey)
	}
}

// requestPrefetchInfo notifies the host UI's prefetchInfo bridge channel.
// The Pool itself does not fetch article bodies directly; the UI owns the
// article data source and answers via OnPrefetchInfo.
func (p *Pool) requestPrefetchInfo(articleIndex int, menuKey string) {
	p.pendingPrefetchArticleIDs[prefetchPendingKey(articleIndex)] = true
	if p.bridgeRequestPrefetchInfo != nil {
		p.bridgeRequestPrefetchInfo(articleIndex, menuKey)
	}
}

func prefetchPendingKey(articleIndex int) string {
	return "index:" + strconv.Itoa(articleIndex)
}

// OnPrefetchInfo handles a prefetchInfo response from the UI (§4.3). Stale
// menuKey responses are silently dropped; the cascade continues regardless.
func (p *Pool) OnPrefetchInfo(ctx context.Context, resp types.PrefetchInfoResponse) {
	p.submitAsync(func() {
		sched := p.scheduler
		if resp.MenuKey != sched.menuKey {
			return
		}
		delete(p.pendingPrefetchArticleIDs, prefetchPendingKey(resp.ArticleIndex))
		sched.removeFromQueue(resp.ArticleIndex)

		if resp.URL == "" {
			// UI had nothing to offer for this index (e.g. out of range
			// content); treat as complete so the cascade advances.
			p.onPrefetchTargetDone(resp.ArticleIndex)
			return
		}

		p.executePrefetchLoad(ctx, resp)
	})
}

func (s *scheduler) removeFromQueue(articleIndex int) {
	filtered := s.queue[:0]
	for _, t := range s.queue {
		if t != articleIndex {
			filtered = append(filtered, t)
		}
	}
	s.queue = filtered
	if s.loadingHasValue && s.loadingIndex == articleIndex {
		s.loadingHasValue = false
	}
}

// executePrefetchLoad implements the prefetch() operation body of §4.2:
// pick a free/recyclable View and load it in the background. A response
// whose ArticleInfo requests full-content mode is routed to the dedicated
// fetch-extract-translate-render variant instead.
func (p *Pool) executePrefetchLoad(ctx context.Context, resp types.PrefetchInfoResponse) {
	if resp.ArticleInfo != nil && resp.ArticleInfo.OpenTarget == types.OpenTargetFullContent {
		p.prefetchFullContent(ctx, resp)
		return
	}

	if existing := p.findByArticle(resp.ArticleID); existing != nil {
		switch existing.Status() {
		case view.StatusReady:
			if !existing.Snapshot().FullContent {
				p.onPrefetchTargetDone(resp.ArticleIndex)
				return
			}
		case view.StatusLoading:
			if !existing.IsLoadingStale(p.cfg.StaleLoadAge) {
				return
			}
			existing.Recycle()
		}
	}

	protected := map[int]bool{}
	for t := range p.scheduler.completed {
		protected[t] = true
	}
	for _, t := range p.scheduler.targets {
		protected[t] = true
	}

	target := p.findByArticle(resp.ArticleID)
	if target == nil {
		target = p.findFreeView(ctx, protected)
	}
	if target == nil {
		p.onPrefetchTargetDone(resp.ArticleIndex)
		return
	}

	p.pendingPrefetchArticleIDs[resp.ArticleID] = true
	settings := view.Settings{}
	if resp.Settings != nil {
		settings = toViewSettings(*resp.Settings)
	}

	go func() {
		_ = target.Load(ctx, p.cfg.ViewLoadTimeout, view.LoadRequest{
			URL:          resp.URL,
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

// onPrefetchTargetDone implements §4.3's onPrefetchComplete.
func (p *Pool) onPrefetchTargetDone(articleIndex int) {
	p.scheduler.completed[articleIndex] = true
	p.scheduler.loadingHasValue = false
	p.scheduler.publishStatus()
	p.scheduler.advanceCascade()
}

// onViewReady is invoked whenever any View transitions to ready, so a
// cache-hit target that finished loading independently of the scheduler's
// own cascade still gets marked complete.
func (s *scheduler) onViewReady(v *view.View) {
	snap := v.Snapshot()
	for _, t := range s.targets {
		if t == snap.ArticleIndex && !s.completed[t] {
			s.completed[t] = true
		}
	}
	s.publishStatus()
}

// publishStatus emits the status report described in §4.3.
func (s *scheduler) publishStatus() {
	p := s.pool
	report := types.StatusReport{
		Direction:      p.readingDirection,
		TotalTargets:   len(s.targets),
		CompletedCount: len(s.completed),
		QueueLength:    len(s.queue),
	}
	for t := range s.completed {
		report.CompletedIndices = append(report.CompletedIndices, t)
	}
	report.Targets = append(report.Targets, s.targets...)

	if len(s.targets) > 0 {
		nextIdx := s.targets[0]
		report.NextIndex = nextIdx
		if p.readingDirection == types.DirectionUnknown && len(s.targets) >= 2 {
			report.NextArticleReady = s.completed[s.targets[0]] && s.completed[s.targets[1]]
		} else {
			report.NextArticleReady = s.completed[nextIdx]
		}
	}
	if s.loadingHasValue {
		if v := p.findByArticleIndexLoading(s.loadingIndex); v != nil {
			report.LoadingArticleID = v.Snapshot().ArticleID
		}
	}

	p.hooks.OnPrefetchStatus(report)
}

func (p *Pool) findByArticleIndexLoading(index int) *view.View {
	for _, v := range p.views {
		snap := v.Snapshot()
		if snap.ArticleIndex == index && snap.Status == view.StatusLoading {
			return v
		}
	}
	return nil
}

// cancelPrefetchLocked implements cancelPrefetch (§4.3): clears the timer, queue,
// in-progress, pending-set and protected-set, and stops + recycles every
// non-active loading View.
func (p *Pool) cancelPrefetchLocked() {
	p.scheduler.cancelLocked()
}

func (s *scheduler) cancelLocked() {
	p := s.pool
	if s.delayTimer != nil {
		s.delayTimer.Stop()
		s.delayTimer = nil
	}
	s.queue = nil
	s.loadingHasValue = false
	s.targets = nil
	s.completed = make(map[int]bool)

	p.pendingPrefetchArticleIDs = make(map[string]bool)
	p.protectedArticleIDs = make(map[string]bool)

	for _, v := range p.views {
		if v.ID() == p.activeViewID {
			continue
		}
		if v.Status() == view.StatusLoading {
			v.Stop()
			v.Recycle()
		}
	}
}

// cancel is the entry point used by Nuke.
func (s *scheduler) cancel() {
	s.cancelLocked()
}
