package events

import (
	"encoding/json"
	"time"
)

// Post lifecycle event types carried on the posts topic.
const (
	TypePostCreated = "POST_CREATED"
	TypePostUpdated = "POST_UPDATED"
	TypePostDeleted = "POST_DELETED"
)

// Interaction event types carried on the interactions topic.
const (
	TypePostLiked     = "POST_LIKED"
	TypePostCommented = "POST_COMMENTED"
	TypePostShared    = "POST_SHARED"
)

// Envelope is the wire shape shared by both topics.
type Envelope struct {
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PostEventData is the payload of lifecycle events.
type PostEventData struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Hashtags  []string  `json:"hashtags,omitempty"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InteractionData carries absolute counter values. Absolute values keep the
// handler idempotent under at-least-once delivery; a delta shape could not.
type InteractionData struct {
	PostID        string `json:"post_id"`
	LikesCount    *int64 `json:"likes_count,omitempty"`
	CommentsCount *int64 `json:"comments_count,omitempty"`
	SharesCount   *int64 `json:"shares_count,omitempty"`
}
