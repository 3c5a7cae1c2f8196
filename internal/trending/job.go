// Package trending runs the periodic rescoring of the global trending set.
package trending

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/feed"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/metrics"
)

// Job rescans the trending set on a fixed interval and rewrites each
// member's score from current engagement counters. It is independent of
// request traffic; a failed run just waits for the next tick.
type Job struct {
	repo     feed.Repository
	ranker   *feed.Ranker
	window   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewJob(repo feed.Repository, ranker *feed.Ranker, window, interval time.Duration, log zerolog.Logger) *Job {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Job{repo: repo, ranker: ranker, window: window, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info().Dur("interval", j.interval).Msg("trending job started")
	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("trending job stopped")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				metrics.TrendingErrors.Inc()
				j.log.Error().Err(err).Msg("trending recalculation failed")
			}
		}
	}
}

// RunOnce recomputes the score of every member still inside the lookback
// window. Members that fell out of the window, or whose backing summary is
// gone, are evicted rather than rescored.
func (j *Job) RunOnce(ctx context.Context) error {
	entries, err := j.repo.TrendingEntries(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	rescored, evicted := 0, 0
	for _, entry := range entries {
		p, err := j.repo.GetPostSummary(ctx, entry.PostID)
		if err != nil {
			if errors.Is(err, feed.ErrCacheMiss) {
				if rmErr := j.repo.RemoveTrending(ctx, entry.PostID); rmErr == nil {
					evicted++
				}
				continue
			}
			j.log.Warn().Err(err).Str("post_id", entry.PostID).Msg("skipping trending member")
			continue
		}
		if now.Sub(p.CreatedAt) > j.window {
			if rmErr := j.repo.RemoveTrending(ctx, entry.PostID); rmErr == nil {
				evicted++
			}
			continue
		}
		score := j.ranker.Score(*p, now)
		if err := j.repo.AddTrending(ctx, entry.PostID, score); err != nil {
			j.log.Warn().Err(err).Str("post_id", entry.PostID).Msg("trending rescore write failed")
			continue
		}
		rescored++
	}

	metrics.TrendingRuns.Inc()
	j.log.Info().Int("rescored", rescored).Int("evicted", evicted).Msg("trending recalculation done")
	return nil
}
