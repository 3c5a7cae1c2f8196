package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	st, err := NewStore(db)
	require.NoError(t, err)
	return st
}

func TestStoreUpsertVersioning(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := &FeedRecord{
		UserID:      "bob",
		Posts:       []PostSummary{{PostID: "p1", AuthorID: "alice"}},
		LastUpdated: time.Now(),
	}
	require.NoError(t, st.Upsert(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	rec.Posts = []PostSummary{{PostID: "p2", AuthorID: "carol"}}
	require.NoError(t, st.Upsert(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	got, err := st.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Posts, 1)
	// Regeneration overwrites, never merges.
	assert.Equal(t, "p2", got.Posts[0].PostID)
}

func TestStoreGetMissing(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
