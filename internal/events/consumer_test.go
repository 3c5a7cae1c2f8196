package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/feed"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
	fail  bool
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return context.DeadlineExceeded
	}
	r.users = append(r.users, userID)
	return nil
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.users))
	copy(out, r.users)
	return out
}

func newTestConsumer(t *testing.T) (*Consumer, feed.Repository, *recordingInvalidator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := feed.NewRepository(rdb)
	inv := &recordingInvalidator{}
	fan := NewFanout(inv, 4, zerolog.Nop())
	c := NewConsumer(repo, feed.NewRanker(feed.DefaultRankWeights()), fan, zerolog.Nop())
	return c, repo, inv, mr
}

// seedFollowers fills the followers set the social-graph service owns.
func seedFollowers(t *testing.T, mr *miniredis.Miniredis, authorID string, followers []string) {
	t.Helper()
	_, err := mr.SetAdd("followers:"+authorID, followers...)
	require.NoError(t, err)
}

func envelope(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(Envelope{EventType: eventType, Timestamp: time.Now(), Data: raw})
	require.NoError(t, err)
	return b
}

func interactionEnvelope(t *testing.T, eventType, postID string, likes, comments, shares *int64) []byte {
	t.Helper()
	return envelope(t, eventType, InteractionData{
		PostID:        postID,
		LikesCount:    likes,
		CommentsCount: comments,
		SharesCount:   shares,
	})
}

func TestPostCreated(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	msg := envelope(t, TypePostCreated, PostEventData{
		PostID: "p1", AuthorID: "alice", Hashtags: []string{"go"}, CreatedAt: now,
	})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))

	p, err := repo.GetPostSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.AuthorID)
	assert.Zero(t, p.LikesCount)

	ids, err := repo.RecentAuthorPosts(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	top, err := repo.TopTrending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, top)
}

func TestPostCreatedWithoutHashtagsSkipsTrending(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()

	msg := envelope(t, TypePostCreated, PostEventData{PostID: "p1", AuthorID: "alice", CreatedAt: time.Now()})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))

	top, err := repo.TopTrending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestPostCreatedReplayIsIdempotent(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	msg := envelope(t, TypePostCreated, PostEventData{
		PostID: "p1", AuthorID: "alice", Hashtags: []string{"go"}, CreatedAt: now,
	})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))

	// Engagement arrives between the original delivery and the replay.
	likes := int64(5)
	require.NoError(t, c.HandleInteractionEvent(ctx, "interactions", nil,
		interactionEnvelope(t, TypePostLiked, "p1", &likes, nil, nil)))

	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))

	p, err := repo.GetPostSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.LikesCount, "replayed create must not reset counters")

	ids, err := repo.RecentAuthorPosts(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids, "no duplicate index entry")

	entries, err := repo.TrendingEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no double trending insert")
}

func TestPostCreatedFansOutToFollowers(t *testing.T) {
	c, _, inv, mr := newTestConsumer(t)
	ctx := context.Background()

	// followers:alice is populated by the social-graph service.
	seedFollowers(t, mr, "alice", []string{"bob", "carol"})

	msg := envelope(t, TypePostCreated, PostEventData{PostID: "p1", AuthorID: "alice", CreatedAt: time.Now()})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))

	assert.ElementsMatch(t, []string{"bob", "carol"}, inv.calls())
}

func TestPostUpdated(t *testing.T) {
	c, repo, inv, mr := newTestConsumer(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	created := envelope(t, TypePostCreated, PostEventData{
		PostID: "p1", AuthorID: "alice", Hashtags: []string{"old"}, CreatedAt: now,
	})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, created))
	seedFollowers(t, mr, "alice", []string{"bob"})

	updated := envelope(t, TypePostUpdated, PostEventData{
		PostID: "p1", AuthorID: "alice", Hashtags: []string{"new"}, CreatedAt: now,
	})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, updated))

	p, err := repo.GetPostSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, p.Hashtags)
	assert.Contains(t, inv.calls(), "bob")
}

func TestPostUpdatedForUnknownPostIsNoop(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()

	updated := envelope(t, TypePostUpdated, PostEventData{PostID: "ghost", AuthorID: "alice", CreatedAt: time.Now()})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, updated))

	_, err := repo.GetPostSummary(ctx, "ghost")
	assert.ErrorIs(t, err, feed.ErrCacheMiss)
}

func TestPostDeletedCleansEverything(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	created := envelope(t, TypePostCreated, PostEventData{
		PostID: "p1", AuthorID: "alice", Hashtags: []string{"go"}, CreatedAt: now,
	})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, created))

	deleted := envelope(t, TypePostDeleted, PostEventData{PostID: "p1", AuthorID: "alice"})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, deleted))

	_, err := repo.GetPostSummary(ctx, "p1")
	assert.ErrorIs(t, err, feed.ErrCacheMiss)
	ids, err := repo.RecentAuthorPosts(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	top, err := repo.TopTrending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	// Replayed delete is still a clean no-op.
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, deleted))
}

func TestDeletedPostNeverServedToFollowers(t *testing.T) {
	c, repo, _, _ := newTestConsumer(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"keep", "drop"} {
		msg := envelope(t, TypePostCreated, PostEventData{PostID: id, AuthorID: "alice", CreatedAt: now})
		require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))
	}
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))

	deleted := envelope(t, TypePostDeleted, PostEventData{PostID: "drop", AuthorID: "alice"})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, deleted))

	gen := feed.NewGenerator(repo, feed.NewRanker(feed.DefaultRankWeights()), nil, 20, time.Hour, zerolog.Nop())
	posts, err := gen.Generate(ctx, "bob", 50)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "keep", posts[0].PostID)
}

func TestInteractionSetsAbsoluteCounters(t *testing.T) {
	c, repo, inv, _ := newTestConsumer(t)
	ctx := context.Background()

	created := envelope(t, TypePostCreated, PostEventData{PostID: "p1", AuthorID: "alice", CreatedAt: time.Now()})
	require.NoError(t, c.HandlePostEvent(ctx, "posts", nil, created))
	before := len(inv.calls())

	likes, shares := int64(3), int64(1)
	require.NoError(t, c.HandleInteractionEvent(ctx, "interactions", nil,
		interactionEnvelope(t, TypePostLiked, "p1", &likes, nil, &shares)))

	p, err := repo.GetPostSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.LikesCount)
	assert.Equal(t, int64(1), p.SharesCount)
	assert.Zero(t, p.CommentsCount)

	// Interactions never trigger invalidation on their own.
	assert.Len(t, inv.calls(), before)

	// Replay: absolute values keep the handler idempotent.
	require.NoError(t, c.HandleInteractionEvent(ctx, "interactions", nil,
		interactionEnvelope(t, TypePostLiked, "p1", &likes, nil, &shares)))
	p, err = repo.GetPostSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.LikesCount)
}

func TestInteractionForUnknownPostIsNoop(t *testing.T) {
	c, _, _, _ := newTestConsumer(t)
	likes := int64(3)
	err := c.HandleInteractionEvent(context.Background(), "interactions", nil,
		interactionEnvelope(t, TypePostLiked, "ghost", &likes, nil, nil))
	assert.NoError(t, err)
}

func TestMalformedEventsAreDropped(t *testing.T) {
	c, _, _, _ := newTestConsumer(t)
	ctx := context.Background()

	assert.NoError(t, c.HandlePostEvent(ctx, "posts", nil, []byte("{not json")))
	assert.NoError(t, c.HandleInteractionEvent(ctx, "interactions", nil, []byte("{not json")))

	// Missing identifiers are dropped too, not retried forever.
	msg := envelope(t, TypePostCreated, PostEventData{AuthorID: "alice"})
	assert.NoError(t, c.HandlePostEvent(ctx, "posts", nil, msg))
}

func TestFanoutFailureDoesNotBlockOthers(t *testing.T) {
	inv := &recordingInvalidator{fail: true}
	fan := NewFanout(inv, 2, zerolog.Nop())
	// Must return despite every invalidation failing.
	fan.Invalidate(context.Background(), []string{"a", "b", "c"})
	assert.Empty(t, inv.calls())
}
