package domain

import "time"

const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Rating is a single user's score for a movie.
type Rating struct {
	ID         int64
	MovieID    int64
	MovieTitle string
	UserID     int64
	Score      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidScore reports whether score lies within [MinScore, MaxScore].
func ValidScore(score float64) bool {
	return score >= MinScore && score <= MaxScore
}
