package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/metrics"
)

// FeedInvalidator is the slice of the feed service the fan-out needs.
type FeedInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Fanout clears the cached feeds of an author's followers through a bounded
// worker pool. One follower's failure never blocks the others; the contract
// is only that every follower's entry eventually gets invalidated.
type Fanout struct {
	feeds   FeedInvalidator
	workers int
	log     zerolog.Logger
}

func NewFanout(feeds FeedInvalidator, workers int, log zerolog.Logger) *Fanout {
	if workers <= 0 {
		workers = 8
	}
	return &Fanout{feeds: feeds, workers: workers, log: log}
}

func (f *Fanout) Invalidate(ctx context.Context, userIDs []string) {
	sem := make(chan struct{}, f.workers)
	var wg sync.WaitGroup
	for _, uid := range userIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(uid string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := f.feeds.Invalidate(ctx, uid); err != nil {
				f.log.Warn().Err(err).Str("user_id", uid).Msg("feed invalidation failed")
				return
			}
			metrics.Invalidations.Inc()
		}(uid)
	}
	wg.Wait()
}
