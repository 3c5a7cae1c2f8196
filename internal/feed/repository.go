package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyFeedFmt        = "feed:%s"
	keyPostFmt        = "post:%s"
	keyAuthorPostsFmt = "author_posts:%s"
	keyFollowingFmt   = "following:%s"
	keyFollowersFmt   = "followers:%s"
	keyTrending       = "trending:posts"

	maxPerAuthor = 500
)

// ErrCacheMiss signals an absent fast-cache entry. It is an expected
// condition, not a failure.
var ErrCacheMiss = errors.New("cache miss")

// TrendingEntry is one member of the global trending set.
type TrendingEntry struct {
	PostID string
	Score  float64
}

// Repository is the cache store adapter: every Redis-resident structure the
// engine owns or reads goes through here.
type Repository interface {
	// Post summaries. CreatePostSummary writes only if absent so a
	// replayed creation event cannot reset live counters.
	CreatePostSummary(ctx context.Context, p PostSummary) (bool, error)
	SavePostSummary(ctx context.Context, p PostSummary) error
	GetPostSummary(ctx context.Context, postID string) (*PostSummary, error)
	DeletePostSummary(ctx context.Context, postID string) error

	// Per-author time-ordered post index.
	AddAuthorPost(ctx context.Context, authorID, postID string, createdAt time.Time) error
	RemoveAuthorPost(ctx context.Context, authorID, postID string) error
	RecentAuthorPosts(ctx context.Context, authorID string, n int) ([]string, error)

	// Global trending set.
	AddTrending(ctx context.Context, postID string, score float64) error
	RemoveTrending(ctx context.Context, postID string) error
	TopTrending(ctx context.Context, n int) ([]string, error)
	TrendingEntries(ctx context.Context) ([]TrendingEntry, error)

	// Follow sets (owned by the social-graph service; read-mostly here).
	Following(ctx context.Context, userID string) ([]string, bool, error)
	CacheFollowing(ctx context.Context, userID string, ids []string, ttl time.Duration) error
	Followers(ctx context.Context, userID string) ([]string, error)

	// Materialized feeds.
	GetFeed(ctx context.Context, userID string) (*FeedRecord, error)
	SaveFeed(ctx context.Context, rec *FeedRecord, ttl time.Duration) error
	DeleteFeed(ctx context.Context, userID string) error
}

type repo struct {
	rdb *redis.Client
}

func NewRepository(rdb *redis.Client) Repository { return &repo{rdb: rdb} }

func (r *repo) feedKey(uid string) string      { return fmt.Sprintf(keyFeedFmt, uid) }
func (r *repo) postKey(pid string) string      { return fmt.Sprintf(keyPostFmt, pid) }
func (r *repo) authorKey(uid string) string    { return fmt.Sprintf(keyAuthorPostsFmt, uid) }
func (r *repo) followingKey(uid string) string { return fmt.Sprintf(keyFollowingFmt, uid) }
func (r *repo) followersKey(uid string) string { return fmt.Sprintf(keyFollowersFmt, uid) }

func (r *repo) CreatePostSummary(ctx context.Context, p PostSummary) (bool, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	return r.rdb.SetNX(ctx, r.postKey(p.PostID), b, 0).Result()
}

func (r *repo) SavePostSummary(ctx context.Context, p PostSummary) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.postKey(p.PostID), b, 0).Err()
}

func (r *repo) GetPostSummary(ctx context.Context, postID string) (*PostSummary, error) {
	raw, err := r.rdb.Get(ctx, r.postKey(postID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var p PostSummary
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) DeletePostSummary(ctx context.Context, postID string) error {
	return r.rdb.Del(ctx, r.postKey(postID)).Err()
}

func (r *repo) AddAuthorPost(ctx context.Context, authorID, postID string, createdAt time.Time) error {
	key := r.authorKey(authorID)
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(createdAt.UnixMilli()), Member: postID})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-maxPerAuthor-1))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *repo) RemoveAuthorPost(ctx context.Context, authorID, postID string) error {
	return r.rdb.ZRem(ctx, r.authorKey(authorID), postID).Err()
}

func (r *repo) RecentAuthorPosts(ctx context.Context, authorID string, n int) ([]string, error) {
	ids, err := r.rdb.ZRevRange(ctx, r.authorKey(authorID), 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) AddTrending(ctx context.Context, postID string, score float64) error {
	return r.rdb.ZAdd(ctx, keyTrending, redis.Z{Score: score, Member: postID}).Err()
}

func (r *repo) RemoveTrending(ctx context.Context, postID string) error {
	return r.rdb.ZRem(ctx, keyTrending, postID).Err()
}

func (r *repo) TopTrending(ctx context.Context, n int) ([]string, error) {
	ids, err := r.rdb.ZRevRange(ctx, keyTrending, 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) TrendingEntries(ctx context.Context) ([]TrendingEntry, error) {
	zs, err := r.rdb.ZRangeWithScores(ctx, keyTrending, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]TrendingEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, TrendingEntry{PostID: id, Score: z.Score})
	}
	return out, nil
}

// Following reports the cached follow set and whether the key exists at
// all, so callers can tell "zero follows" apart from "never cached".
func (r *repo) Following(ctx context.Context, userID string) ([]string, bool, error) {
	key := r.followingKey(userID)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil
	}
	ids, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (r *repo) CacheFollowing(ctx context.Context, userID string, ids []string, ttl time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	key := r.followingKey(userID)
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *repo) Followers(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.followersKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) GetFeed(ctx context.Context, userID string) (*FeedRecord, error) {
	raw, err := r.rdb.Get(ctx, r.feedKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var rec FeedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repo) SaveFeed(ctx context.Context, rec *FeedRecord, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.feedKey(rec.UserID), b, ttl).Err()
}

func (r *repo) DeleteFeed(ctx context.Context, userID string) error {
	return r.rdb.Del(ctx, r.feedKey(userID)).Err()
}
