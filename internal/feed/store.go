package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedDocument is the durable backup of a user's materialized feed: one row
// per user, overwritten whole on every regeneration. It is a recovery/audit
// copy and is allowed to lag the fast cache.
type FeedDocument struct {
	UserID      string    `gorm:"primaryKey;type:varchar(64)"`
	Posts       []byte    `gorm:"type:jsonb"`
	LastUpdated time.Time
	Version     int64
}

func (FeedDocument) TableName() string { return "feed_documents" }

// Store is the durable store adapter.
type Store interface {
	Upsert(ctx context.Context, rec *FeedRecord) error
	Get(ctx context.Context, userID string) (*FeedRecord, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&FeedDocument{}); err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

// Upsert writes the record, bumping version in the update expression so
// concurrent regenerations stay monotonic without a read-modify-write.
func (s *store) Upsert(ctx context.Context, rec *FeedRecord) error {
	posts, err := json.Marshal(rec.Posts)
	if err != nil {
		return err
	}
	doc := FeedDocument{
		UserID:      rec.UserID,
		Posts:       posts,
		LastUpdated: rec.LastUpdated,
		Version:     1,
	}
	err = s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"posts":        posts,
				"last_updated": rec.LastUpdated,
				"version":      gorm.Expr("feed_documents.version + 1"),
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "version"}}},
	).Create(&doc).Error
	if err != nil {
		return err
	}
	rec.Version = doc.Version
	return nil
}

func (s *store) Get(ctx context.Context, userID string) (*FeedRecord, error) {
	var doc FeedDocument
	err := s.db.WithContext(ctx).First(&doc, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	rec := FeedRecord{
		UserID:      doc.UserID,
		LastUpdated: doc.LastUpdated,
		Version:     doc.Version,
	}
	if len(doc.Posts) > 0 {
		if err := json.Unmarshal(doc.Posts, &rec.Posts); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
