package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/metrics"
)

// ErrUnavailable is returned when neither cache tier nor regeneration can
// produce a feed.
var ErrUnavailable = errors.New("feed temporarily unavailable")

// Service owns the read/write/invalidate lifecycle of cached feeds. The
// fast cache decides freshness; the durable row is a recovery copy that is
// allowed to lag.
type Service interface {
	GetFeed(ctx context.Context, userID string, page, pageSize int) (*FeedPage, error)
	GetTrending(ctx context.Context, page, pageSize int) (*FeedPage, error)
	Refresh(ctx context.Context, userID string) error
	Invalidate(ctx context.Context, userID string) error
}

type service struct {
	repo    Repository
	store   Store
	gen     *Generator
	ttl     time.Duration
	maxFeed int
	log     zerolog.Logger
}

func NewService(repo Repository, store Store, gen *Generator, ttl time.Duration, maxFeed int, log zerolog.Logger) Service {
	if maxFeed <= 0 {
		maxFeed = 50
	}
	return &service{repo: repo, store: store, gen: gen, ttl: ttl, maxFeed: maxFeed, log: log}
}

func (s *service) GetFeed(ctx context.Context, userID string, page, pageSize int) (*FeedPage, error) {
	if pageSize > s.maxFeed {
		pageSize = s.maxFeed
	}

	rec, err := s.repo.GetFeed(ctx, userID)
	if err == nil {
		metrics.CacheHits.Inc()
		posts, pg := paginate(rec.Posts, page, pageSize)
		return &FeedPage{Posts: posts, Pagination: pg, Cached: true}, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("fast cache read failed")
	}
	metrics.CacheMisses.Inc()

	rec, err = s.regenerate(ctx, userID)
	if err != nil {
		// Last resort: serve the durable copy even if stale.
		durable, derr := s.store.Get(ctx, userID)
		if derr != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("feed generation failed")
			return nil, ErrUnavailable
		}
		rec = durable
	}

	posts, pg := paginate(rec.Posts, page, pageSize)
	return &FeedPage{Posts: posts, Pagination: pg, Cached: false}, nil
}

func (s *service) GetTrending(ctx context.Context, page, pageSize int) (*FeedPage, error) {
	if pageSize > s.maxFeed {
		pageSize = s.maxFeed
	}
	ids, err := s.repo.TopTrending(ctx, s.maxFeed)
	if err != nil {
		return nil, ErrUnavailable
	}
	posts := make([]PostSummary, 0, len(ids))
	for _, id := range ids {
		p, perr := s.repo.GetPostSummary(ctx, id)
		if perr != nil {
			continue
		}
		posts = append(posts, *p)
	}
	paged, pg := paginate(posts, page, pageSize)
	return &FeedPage{Posts: paged, Pagination: pg, Cached: true}, nil
}

// Refresh forces regeneration regardless of cache state and writes through
// to both tiers.
func (s *service) Refresh(ctx context.Context, userID string) error {
	_, err := s.regenerate(ctx, userID)
	return err
}

// Invalidate deletes the fast-cache entry only. The durable row stays in
// place so a later failed regeneration still has something to serve.
func (s *service) Invalidate(ctx context.Context, userID string) error {
	return s.repo.DeleteFeed(ctx, userID)
}

func (s *service) regenerate(ctx context.Context, userID string) (*FeedRecord, error) {
	posts, err := s.gen.Generate(ctx, userID, s.maxFeed)
	if err != nil {
		return nil, err
	}
	if len(posts) > s.maxFeed {
		posts = posts[:s.maxFeed]
	}
	rec := &FeedRecord{
		UserID:      userID,
		Posts:       posts,
		LastUpdated: time.Now(),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		// The durable tier lagging is tolerated; the fast cache decides
		// freshness.
		s.log.Error().Err(err).Str("user_id", userID).Msg("durable feed upsert failed")
	}
	if err := s.repo.SaveFeed(ctx, rec, s.ttl); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("fast cache write failed")
	}
	return rec, nil
}
