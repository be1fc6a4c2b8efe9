package domain

import "time"

// Review is a user's text review of a movie with a maintained like counter.
type Review struct {
	ID        int64
	MovieID   int64
	UserID    int64
	Text      string
	LikeCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Like records that a user liked a review.
type Like struct {
	ID        int64
	ReviewID  int64
	UserID    int64
	CreatedAt time.Time
}
