package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Generator collects candidate posts for a user and ranks them. Candidates
// come from the followed authors' recent-post indexes; a user with no
// follow set gets the trending fallback instead.
type Generator struct {
	repo      Repository
	ranker    *Ranker
	social    *SocialClient
	perAuthor int
	followTTL time.Duration
	log       zerolog.Logger
}

func NewGenerator(repo Repository, ranker *Ranker, social *SocialClient, perAuthor int, followTTL time.Duration, log zerolog.Logger) *Generator {
	if perAuthor <= 0 {
		perAuthor = 20
	}
	return &Generator{
		repo:      repo,
		ranker:    ranker,
		social:    social,
		perAuthor: perAuthor,
		followTTL: followTTL,
		log:       log,
	}
}

func (g *Generator) Generate(ctx context.Context, userID string, limit int) ([]PostSummary, error) {
	authors := g.followedAuthors(ctx, userID)
	if len(authors) == 0 {
		return g.trendingFallback(ctx, limit)
	}

	seen := make(map[string]struct{})
	candidates := make([]PostSummary, 0, len(authors)*g.perAuthor)
	for _, author := range authors {
		ids, err := g.repo.RecentAuthorPosts(ctx, author, g.perAuthor)
		if err != nil {
			// One author's timeline being unavailable must not abort
			// the whole generation.
			g.log.Warn().Err(err).Str("author_id", author).Msg("skipping author timeline")
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			p, err := g.repo.GetPostSummary(ctx, id)
			if err != nil {
				if !errors.Is(err, ErrCacheMiss) {
					g.log.Warn().Err(err).Str("post_id", id).Msg("skipping post summary")
				}
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, *p)
		}
	}

	if len(candidates) == 0 {
		return g.trendingFallback(ctx, limit)
	}

	ranked := g.ranker.Rank(candidates, time.Now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// followedAuthors reads the cached follow set. When the set has never been
// cached and a social-graph client is configured, it is fetched once and
// written back; any failure just means the trending fallback applies.
func (g *Generator) followedAuthors(ctx context.Context, userID string) []string {
	ids, cached, err := g.repo.Following(ctx, userID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("follow set read failed")
		return nil
	}
	if !cached && g.social != nil {
		fetched, err := g.social.FetchFollowing(ctx, userID)
		if err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("follow set fetch failed")
			return nil
		}
		if err := g.repo.CacheFollowing(ctx, userID, fetched, g.followTTL); err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("follow set cache write failed")
		}
		return fetched
	}
	return ids
}

// trendingFallback serves the global trending posts in trending order,
// silently dropping members whose backing summary is gone.
func (g *Generator) trendingFallback(ctx context.Context, limit int) ([]PostSummary, error) {
	ids, err := g.repo.TopTrending(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PostSummary, 0, len(ids))
	for _, id := range ids {
		p, err := g.repo.GetPostSummary(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}
