package httpserver

import (
	"time"

	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/tmdb"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,alphanum,min=3,max=150"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"notblank"`
}

type tokenResponse struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type movieCreateRequest struct {
	TMDBID      int64   `json:"tmdb_id" validate:"gt=0"`
	Title       string  `json:"title" validate:"notblank,max=255"`
	Overview    string  `json:"overview" validate:"max=10000"`
	ReleaseDate *string `json:"release_date" validate:"omitempty,datetime=2006-01-02"`
	VoteAverage float64 `json:"vote_average" validate:"gte=0,lte=10"`
	PosterPath  string  `json:"poster_path" validate:"max=500"`
}

// movieUpdateRequest backs PUT, PATCH and the overrides of an admin add.
// tmdb_id is accepted only when it matches the path.
type movieUpdateRequest struct {
	TMDBID      *int64   `json:"tmdb_id,omitempty"`
	Title       *string  `json:"title,omitempty" validate:"omitempty,notblank,max=255"`
	Overview    *string  `json:"overview,omitempty" validate:"omitempty,max=10000"`
	ReleaseDate *string  `json:"release_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	VoteAverage *float64 `json:"vote_average,omitempty" validate:"omitempty,gte=0,lte=10"`
	PosterPath  *string  `json:"poster_path,omitempty" validate:"omitempty,max=500"`
}

func (req movieUpdateRequest) patch() (domain.MoviePatch, error) {
	date, err := parseDate(req.ReleaseDate)
	if err != nil {
		return domain.MoviePatch{}, err
	}
	return domain.MoviePatch{
		Title:       req.Title,
		Overview:    req.Overview,
		ReleaseDate: date,
		VoteAverage: req.VoteAverage,
		PosterPath:  req.PosterPath,
	}, nil
}

type movieResponse struct {
	ID            int64   `json:"id"`
	TMDBID        int64   `json:"tmdb_id"`
	Title         string  `json:"title"`
	Overview      string  `json:"overview"`
	ReleaseDate   *string `json:"release_date"`
	VoteAverage   float64 `json:"vote_average"`
	PosterPath    string  `json:"poster_path"`
	AverageRating float64 `json:"average_rating"`
	WatchCount    *int64  `json:"watch_count,omitempty"`
}

type movieListResponse struct {
	Count    int64           `json:"count"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasNext  bool            `json:"has_next"`
	Results  []movieResponse `json:"results"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating" validate:"required,gte=0,lte=10"`
}

type ratingResponse struct {
	ID            int64    `json:"id"`
	Movie         int64    `json:"movie"`
	MovieTitle    string   `json:"movie_title"`
	User          int64    `json:"user"`
	Rating        float64  `json:"rating"`
	AverageRating *float64 `json:"average_rating,omitempty"`
}

type reviewRequest struct {
	Text string `json:"text" validate:"notblank,max=5000"`
}

type reviewResponse struct {
	ID        int64     `json:"id"`
	Movie     int64     `json:"movie"`
	User      int64     `json:"user"`
	Text      string    `json:"text"`
	LikeCount int64     `json:"like_count"`
	LikedByMe *bool     `json:"liked_by_me,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type likeResponse struct {
	Detail    string `json:"detail"`
	LikeCount int64  `json:"like_count"`
}

type watchRequest struct {
	Movie int64 `json:"movie" validate:"gt=0"`
}

type watchResponse struct {
	ID         int64     `json:"id"`
	User       string    `json:"user"`
	Movie      int64     `json:"movie"`
	MovieTitle string    `json:"movie_title"`
	WatchedAt  time.Time `json:"watched_at"`
}

type importRequest struct {
	Limit *int `json:"limit,omitempty" validate:"omitempty,gt=0,lte=10000"`
}

type importResponse struct {
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
	Pages   int    `json:"pages"`
	Error   string `json:"error,omitempty"`
}

type adminAddRequest struct {
	TMDBID    int64               `json:"tmdb_id" validate:"gt=0"`
	Overrides *movieUpdateRequest `json:"overrides,omitempty"`
}

type catalogMovieResponse struct {
	TMDBID      int64   `json:"tmdb_id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate *string `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
}

func toMovieResponse(m domain.Movie) movieResponse {
	return movieResponse{
		ID:            m.ID,
		TMDBID:        m.TMDBID,
		Title:         m.Title,
		Overview:      m.Overview,
		ReleaseDate:   formatDate(m.ReleaseDate),
		VoteAverage:   m.VoteAverage,
		PosterPath:    m.PosterPath,
		AverageRating: m.AverageRating,
	}
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for _, m := range movies {
		out = append(out, toMovieResponse(m))
	}
	return out
}

// toRatingResponse reports the movie by its public tmdb id, which the
// caller already resolved from the path.
func toRatingResponse(r domain.Rating, tmdbID int64) ratingResponse {
	return ratingResponse{
		ID:         r.ID,
		Movie:      tmdbID,
		MovieTitle: r.MovieTitle,
		User:       r.UserID,
		Rating:     r.Score,
	}
}

func toReviewResponse(r domain.Review, tmdbID int64) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		Movie:     tmdbID,
		User:      r.UserID,
		Text:      r.Text,
		LikeCount: r.LikeCount,
		CreatedAt: r.CreatedAt,
	}
}

func toWatchResponse(e domain.WatchEvent) watchResponse {
	return watchResponse{
		ID:         e.ID,
		User:       e.Username,
		Movie:      e.TMDBID,
		MovieTitle: e.MovieTitle,
		WatchedAt:  e.WatchedAt,
	}
}

func toCatalogMovieResponse(m tmdb.Movie) catalogMovieResponse {
	return catalogMovieResponse{
		TMDBID:      m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: formatDate(m.ReleaseDate),
		VoteAverage: m.VoteAverage,
		PosterPath:  m.PosterPath,
	}
}
