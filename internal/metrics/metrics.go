// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_cache_hits_total",
		Help: "Feed requests served from the fast cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_cache_misses_total",
		Help: "Feed requests that triggered regeneration.",
	})
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_events_consumed_total",
		Help: "Post lifecycle and interaction events processed.",
	}, []string{"type"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_events_dropped_total",
		Help: "Malformed events dropped by the consumer.",
	})
	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_invalidations_total",
		Help: "Per-follower feed cache invalidations.",
	})
	TrendingRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_trending_job_runs_total",
		Help: "Completed trending recalculation runs.",
	})
	TrendingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_trending_job_errors_total",
		Help: "Trending recalculation runs that failed.",
	})
)
