package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/feed"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/metrics"
)

// Consumer applies post lifecycle and interaction events to the post cache,
// the per-author indexes and the trending set, and fans out feed
// invalidation to followers. Every handler is idempotent: events are
// delivered at least once and may arrive out of order across partitions.
type Consumer struct {
	repo   feed.Repository
	ranker *feed.Ranker
	fan    *Fanout
	log    zerolog.Logger
}

func NewConsumer(repo feed.Repository, ranker *feed.Ranker, fan *Fanout, log zerolog.Logger) *Consumer {
	return &Consumer{repo: repo, ranker: ranker, fan: fan, log: log}
}

// HandlePostEvent processes one lifecycle event. Malformed payloads are
// logged and dropped so a poison message cannot loop forever.
func (c *Consumer) HandlePostEvent(ctx context.Context, topic string, key, value []byte) error {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		c.dropped(topic, err)
		return nil
	}

	var data PostEventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		c.dropped(topic, err)
		return nil
	}
	if data.PostID == "" || data.AuthorID == "" {
		c.dropped(topic, errors.New("missing post_id or author_id"))
		return nil
	}

	switch env.EventType {
	case TypePostCreated:
		return c.postCreated(ctx, data)
	case TypePostUpdated:
		return c.postUpdated(ctx, data)
	case TypePostDeleted:
		return c.postDeleted(ctx, data)
	default:
		c.dropped(topic, errors.New("unknown event type "+env.EventType))
		return nil
	}
}

func (c *Consumer) postCreated(ctx context.Context, data PostEventData) error {
	summary := feed.PostSummary{
		PostID:    data.PostID,
		AuthorID:  data.AuthorID,
		Hashtags:  data.Hashtags,
		Mentions:  data.Mentions,
		CreatedAt: data.CreatedAt,
	}
	if _, err := c.repo.CreatePostSummary(ctx, summary); err != nil {
		return err
	}
	if err := c.repo.AddAuthorPost(ctx, data.AuthorID, data.PostID, data.CreatedAt); err != nil {
		return err
	}
	if len(data.Hashtags) > 0 {
		// Engagement is zero at creation; the initial trending score is
		// recency only.
		score := c.ranker.Score(summary, time.Now())
		if err := c.repo.AddTrending(ctx, data.PostID, score); err != nil {
			return err
		}
	}
	metrics.EventsConsumed.WithLabelValues(TypePostCreated).Inc()
	c.invalidateFollowers(ctx, data.AuthorID)
	return nil
}

func (c *Consumer) postUpdated(ctx context.Context, data PostEventData) error {
	current, err := c.repo.GetPostSummary(ctx, data.PostID)
	if err != nil && !errors.Is(err, feed.ErrCacheMiss) {
		return err
	}
	// An update for a summary we never saw is a no-op, not an error.
	if current != nil {
		current.Hashtags = data.Hashtags
		current.Mentions = data.Mentions
		if err := c.repo.SavePostSummary(ctx, *current); err != nil {
			return err
		}
	}
	metrics.EventsConsumed.WithLabelValues(TypePostUpdated).Inc()
	c.invalidateFollowers(ctx, data.AuthorID)
	return nil
}

func (c *Consumer) postDeleted(ctx context.Context, data PostEventData) error {
	if err := c.repo.DeletePostSummary(ctx, data.PostID); err != nil {
		return err
	}
	if err := c.repo.RemoveAuthorPost(ctx, data.AuthorID, data.PostID); err != nil {
		return err
	}
	if err := c.repo.RemoveTrending(ctx, data.PostID); err != nil {
		return err
	}
	metrics.EventsConsumed.WithLabelValues(TypePostDeleted).Inc()
	c.invalidateFollowers(ctx, data.AuthorID)
	return nil
}

// HandleInteractionEvent sets engagement counters. Interactions do not
// invalidate feeds by themselves; re-ranking on engagement waits for the
// trending job so popular posts cannot cause invalidation storms.
func (c *Consumer) HandleInteractionEvent(ctx context.Context, topic string, key, value []byte) error {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		c.dropped(topic, err)
		return nil
	}
	var data InteractionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		c.dropped(topic, err)
		return nil
	}
	if data.PostID == "" {
		c.dropped(topic, errors.New("missing post_id"))
		return nil
	}

	current, err := c.repo.GetPostSummary(ctx, data.PostID)
	if err != nil {
		if errors.Is(err, feed.ErrCacheMiss) {
			return nil
		}
		return err
	}
	if data.LikesCount != nil {
		current.LikesCount = *data.LikesCount
	}
	if data.CommentsCount != nil {
		current.CommentsCount = *data.CommentsCount
	}
	if data.SharesCount != nil {
		current.SharesCount = *data.SharesCount
	}
	if err := c.repo.SavePostSummary(ctx, *current); err != nil {
		return err
	}
	metrics.EventsConsumed.WithLabelValues(env.EventType).Inc()
	return nil
}

func (c *Consumer) invalidateFollowers(ctx context.Context, authorID string) {
	followers, err := c.repo.Followers(ctx, authorID)
	if err != nil {
		c.log.Warn().Err(err).Str("author_id", authorID).Msg("follower lookup failed")
		return
	}
	c.fan.Invalidate(ctx, followers)
}

func (c *Consumer) dropped(topic string, err error) {
	metrics.EventsDropped.Inc()
	c.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed event")
}
