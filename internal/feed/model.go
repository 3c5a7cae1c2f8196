package feed

import "time"

// PostSummary is the denormalized, cache-resident projection of a post.
// Engagement counters are owned by the event consumer; the ranking path
// only ever reads them.
type PostSummary struct {
	PostID        string    `json:"post_id"`
	AuthorID      string    `json:"author_id"`
	Hashtags      []string  `json:"hashtags,omitempty"`
	Mentions      []string  `json:"mentions,omitempty"`
	LikesCount    int64     `json:"likes_count"`
	CommentsCount int64     `json:"comments_count"`
	SharesCount   int64     `json:"shares_count"`
	CreatedAt     time.Time `json:"created_at"`
	Score         float64   `json:"score"`
}

// FeedRecord is the materialized feed for one user. Posts hold the ranked
// order as of LastUpdated; the record is overwritten whole on regeneration.
type FeedRecord struct {
	UserID      string        `json:"user_id"`
	Posts       []PostSummary `json:"posts"`
	LastUpdated time.Time     `json:"last_updated"`
	Version     int64         `json:"version"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// FeedPage is what the API returns: one page of a feed snapshot plus
// whether the snapshot came from the fast cache.
type FeedPage struct {
	Posts      []PostSummary `json:"posts"`
	Pagination Pagination    `json:"pagination"`
	Cached     bool          `json:"cached"`
}

func paginate(posts []PostSummary, page, pageSize int) ([]PostSummary, Pagination) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total := len(posts)
	pages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= total {
		return []PostSummary{}, Pagination{Page: page, Limit: pageSize, Total: total, Pages: pages}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return posts[start:end], Pagination{Page: page, Limit: pageSize, Total: total, Pages: pages}
}
