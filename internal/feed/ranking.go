package feed

import (
	"sort"
	"time"
)

// RankWeights is the scoring policy: linear recency decay clamped at zero
// plus linearly weighted engagement. The shape is fixed, the numbers are
// configuration.
type RankWeights struct {
	Like         float64
	Comment      float64
	Share        float64
	DecayCeiling float64 // hours until recency contributes nothing
}

func DefaultRankWeights() RankWeights {
	return RankWeights{Like: 3, Comment: 5, Share: 10, DecayCeiling: 100}
}

// Ranker scores and orders candidate posts. It performs no I/O and is safe
// for concurrent use.
type Ranker struct {
	w RankWeights
}

func NewRanker(w RankWeights) *Ranker {
	if w.DecayCeiling <= 0 {
		w.DecayCeiling = 100
	}
	return &Ranker{w: w}
}

// Score computes the rank value of a single post as of the given instant.
func (rk *Ranker) Score(p PostSummary, asOf time.Time) float64 {
	ageHours := asOf.Sub(p.CreatedAt).Hours()
	recency := rk.w.DecayCeiling - ageHours
	if recency < 0 {
		recency = 0
	}
	engagement := float64(p.LikesCount)*rk.w.Like +
		float64(p.CommentsCount)*rk.w.Comment +
		float64(p.SharesCount)*rk.w.Share
	return recency + engagement
}

// Rank returns the candidates annotated with scores, ordered by score
// descending. Ties break by created_at descending, then post_id ascending,
// so equal inputs always produce identical output.
func (rk *Ranker) Rank(candidates []PostSummary, asOf time.Time) []PostSummary {
	ranked := make([]PostSummary, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Score = rk.Score(ranked[i], asOf)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].PostID < ranked[j].PostID
	})
	return ranked
}
