package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, Repository, Store) {
	t.Helper()
	repo, _ := newTestRepo(t)
	st := newTestStore(t)
	gen := NewGenerator(repo, NewRanker(DefaultRankWeights()), nil, 100, time.Hour, zerolog.Nop())
	svc := NewService(repo, st, gen, time.Hour, 50, zerolog.Nop())
	return svc, repo, st
}

func TestGetFeedMissThenHit(t *testing.T) {
	svc, repo, st := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedPost(t, repo, "a1", "alice", now)
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))

	fp, err := svc.GetFeed(ctx, "bob", 1, 20)
	require.NoError(t, err)
	assert.False(t, fp.Cached)
	require.Len(t, fp.Posts, 1)
	assert.Equal(t, 1, fp.Pagination.Total)

	// The miss wrote through to both tiers.
	rec, err := repo.GetFeed(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, rec.Posts, 1)
	durable, err := st.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), durable.Version)

	fp, err = svc.GetFeed(ctx, "bob", 1, 20)
	require.NoError(t, err)
	assert.True(t, fp.Cached)
}

func TestFeedRecordBounded(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 80; i++ {
		seedPost(t, repo, fmt.Sprintf("p%03d", i), "alice", now.Add(-time.Duration(i)*time.Minute))
	}
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))

	_, err := svc.GetFeed(ctx, "bob", 1, 20)
	require.NoError(t, err)

	rec, err := repo.GetFeed(ctx, "bob")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rec.Posts), 50)
}

func TestInvalidateIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedPost(t, repo, "a1", "alice", now)
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))
	_, err := svc.GetFeed(ctx, "bob", 1, 20)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx, "bob"))
	_, err = repo.GetFeed(ctx, "bob")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Second call: same end state, no error.
	require.NoError(t, svc.Invalidate(ctx, "bob"))
	_, err = repo.GetFeed(ctx, "bob")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInvalidateLeavesDurableCopy(t *testing.T) {
	svc, repo, st := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedPost(t, repo, "a1", "alice", now)
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))
	_, err := svc.GetFeed(ctx, "bob", 1, 20)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx, "bob"))
	durable, err := st.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, durable.Posts, 1)
}

func TestRefreshBumpsVersion(t *testing.T) {
	svc, repo, st := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedPost(t, repo, "a1", "alice", now)
	require.NoError(t, repo.CacheFollowing(ctx, "bob", []string{"alice"}, time.Hour))

	require.NoError(t, svc.Refresh(ctx, "bob"))
	require.NoError(t, svc.Refresh(ctx, "bob"))

	durable, err := st.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), durable.Version)
}

func TestEmptyFollowSetServesTrending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.SavePostSummary(ctx, PostSummary{PostID: "hot", AuthorID: "x", CreatedAt: now}))
	require.NoError(t, repo.AddTrending(ctx, "hot", 100))

	fp, err := svc.GetFeed(ctx, "loner", 1, 20)
	require.NoError(t, err)
	require.Len(t, fp.Posts, 1)
	assert.Equal(t, "hot", fp.Posts[0].PostID)
}

func TestGetTrendingPagination(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		require.NoError(t, repo.SavePostSummary(ctx, PostSummary{PostID: id, AuthorID: "x", CreatedAt: now}))
		require.NoError(t, repo.AddTrending(ctx, id, float64(100-i)))
	}

	fp, err := svc.GetTrending(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, fp.Posts, 2)
	assert.Equal(t, "t0", fp.Posts[0].PostID)
	assert.Equal(t, 5, fp.Pagination.Total)
	assert.Equal(t, 3, fp.Pagination.Pages)

	fp, err = svc.GetTrending(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, fp.Posts, 1)
	assert.Equal(t, "t4", fp.Posts[0].PostID)
}
