package pool

import (
	"context"

	"github.com/fluent-reader/contentpool/internal/types"
)

// Prefetch implements the fire-and-forget UI -> Pool prefetch() call
// (§4.2, §6): given a concrete URL, load it into a free or recyclable
// View in the background without waiting for scheduler round-trip.
func (p *Pool) Prefetch(ctx context.Context, req types.PrefetchRequest) {
	p.submitAsync(func() {
		if !p.cfg.PrefetchEnabled || p.awaitingFirstNavigationAfterNuke {
			return
		}
		p.executePrefetchLoad(ctx, types.PrefetchInfoResponse{
			ArticleIndex: req.ArticleIndex,
			ArticleID:    req.ArticleID,
			URL:          req.URL,
			FeedID:       req.FeedID,
			Settings:     &req.Settings,
			MenuKey:      p.menuKey,
		})
	})
}
