package domain

import "time"

// WatchEvent is an immutable record of a user having watched a movie.
type WatchEvent struct {
	ID         int64
	UserID     int64
	Username   string
	MovieID    int64
	TMDBID     int64
	MovieTitle string
	WatchedAt  time.Time
}
