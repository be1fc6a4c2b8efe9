package domain

import "time"

// Movie represents a catalog entry keyed publicly by its external catalog id.
type Movie struct {
	ID            int64
	TMDBID        int64
	Title         string
	Overview      string
	ReleaseDate   *time.Time
	VoteAverage   float64
	AverageRating float64
	PosterPath    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MovieInput carries the client-writable movie fields. AverageRating is
// deliberately absent: it is derived from the rating ledger.
type MovieInput struct {
	TMDBID      int64
	Title       string
	Overview    string
	ReleaseDate *time.Time
	VoteAverage float64
	PosterPath  string
}

// MoviePatch is a partial update; nil fields are left untouched.
type MoviePatch struct {
	Title       *string
	Overview    *string
	ReleaseDate *time.Time
	VoteAverage *float64
	PosterPath  *string
}
