package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	db DBTX
}

const movieColumns = `
    id,
    tmdb_id,
    title,
    overview,
    release_date,
    vote_average,
    average_rating,
    poster_path,
    created_at,
    updated_at
`

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// MovieListFilters encapsulates pagination options.
type MovieListFilters struct {
	Page     int
	PageSize int
}

// MoviePage is one page of the catalog ordered by internal id.
type MoviePage struct {
	Items    []domain.Movie
	Total    int64
	Page     int
	PageSize int
}

// HasNext reports whether another page follows this one.
func (p MoviePage) HasNext() bool {
	return int64(p.Page*p.PageSize) < p.Total
}

// Create inserts a new movie row and returns the stored entity.
func (r *MoviesRepository) Create(ctx context.Context, in domain.MovieInput) (domain.Movie, error) {
	query := fmt.Sprintf(`
        INSERT INTO movies (tmdb_id, title, overview, release_date, vote_average, poster_path)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, movieColumns)

	row := r.db.QueryRow(ctx, query, in.TMDBID, in.Title, in.Overview, in.ReleaseDate, in.VoteAverage, in.PosterPath)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, translate(err, "movie")
	}
	return movie, nil
}

// GetByTMDBID fetches a movie by its external catalog identifier.
func (r *MoviesRepository) GetByTMDBID(ctx context.Context, tmdbID int64) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE tmdb_id = $1`, movieColumns)
	movie, err := scanMovie(r.db.QueryRow(ctx, query, tmdbID))
	if err != nil {
		return domain.Movie{}, translate(err, "movie")
	}
	return movie, nil
}

// LockByTMDBID fetches a movie and holds its row lock until the surrounding
// transaction ends. Rating mutations take this lock so the recomputed average
// is serialized per movie. Only meaningful on a transaction-bound repository.
func (r *MoviesRepository) LockByTMDBID(ctx context.Context, tmdbID int64) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE tmdb_id = $1 FOR UPDATE`, movieColumns)
	movie, err := scanMovie(r.db.QueryRow(ctx, query, tmdbID))
	if err != nil {
		return domain.Movie{}, translate(err, "movie")
	}
	return movie, nil
}

// List returns a page of movies ordered by id.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MoviePage, error) {
	filters = normalizePage(filters)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM movies`).Scan(&total); err != nil {
		return MoviePage{}, fmt.Errorf("count movies: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM movies ORDER BY id LIMIT $1 OFFSET $2`, movieColumns)
	offset := (filters.Page - 1) * filters.PageSize
	rows, err := r.db.Query(ctx, query, filters.PageSize, offset)
	if err != nil {
		return MoviePage{}, err
	}
	items, err := collectMovies(rows)
	if err != nil {
		return MoviePage{}, err
	}

	return MoviePage{Items: items, Total: total, Page: filters.Page, PageSize: filters.PageSize}, nil
}

// RatedBy lists the distinct movies a user has rated.
func (r *MoviesRepository) RatedBy(ctx context.Context, userID int64) ([]domain.Movie, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM movies
        WHERE id IN (SELECT movie_id FROM ratings WHERE user_id = $1)
        ORDER BY id
    `, movieColumns)
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectMovies(rows)
}

// Update applies a partial update keyed by tmdb id.
func (r *MoviesRepository) Update(ctx context.Context, tmdbID int64, patch domain.MoviePatch) (domain.Movie, error) {
	query := fmt.Sprintf(`
        UPDATE movies
        SET title = COALESCE($2, title),
            overview = COALESCE($3, overview),
            release_date = COALESCE($4, release_date),
            vote_average = COALESCE($5, vote_average),
            poster_path = COALESCE($6, poster_path),
            updated_at = now()
        WHERE tmdb_id = $1
        RETURNING %s
    `, movieColumns)

	row := r.db.QueryRow(ctx, query, tmdbID, patch.Title, patch.Overview, patch.ReleaseDate, patch.VoteAverage, patch.PosterPath)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, translate(err, "movie")
	}
	return movie, nil
}

// Delete removes a movie; dependents cascade.
func (r *MoviesRepository) Delete(ctx context.Context, tmdbID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM movies WHERE tmdb_id = $1`, tmdbID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("movie not found")
	}
	return nil
}

// SetAverageRating persists the derived average. Callers outside the rating
// ledger must not use this.
func (r *MoviesRepository) SetAverageRating(ctx context.Context, movieID int64, average float64) error {
	tag, err := r.db.Exec(ctx, `UPDATE movies SET average_rating = $2, updated_at = now() WHERE id = $1`, movieID, average)
	if err != nil {
		return fmt.Errorf("set average rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("movie not found")
	}
	return nil
}

// ExistingTMDBIDs returns the subset of ids already present in the catalog.
func (r *MoviesRepository) ExistingTMDBIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	rows, err := r.db.Query(ctx, `SELECT tmdb_id FROM movies WHERE tmdb_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertBatch inserts movies in a single round trip, skipping any tmdb id that
// already exists. It returns the number of rows actually inserted.
func (r *MoviesRepository) InsertBatch(ctx context.Context, movies []domain.MovieInput) (int, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	const query = `
        INSERT INTO movies (tmdb_id, title, overview, release_date, vote_average, poster_path)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tmdb_id) DO NOTHING
    `
	batch := &pgx.Batch{}
	for _, m := range movies {
		batch.Queue(query, m.TMDBID, m.Title, m.Overview, m.ReleaseDate, m.VoteAverage, m.PosterPath)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range movies {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert movie batch: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func normalizePage(f MovieListFilters) MovieListFilters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	} else if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func collectMovies(rows pgx.Rows) ([]domain.Movie, error) {
	defer rows.Close()
	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var (
		movie       domain.Movie
		releaseDate *time.Time
	)

	err := row.Scan(
		&movie.ID,
		&movie.TMDBID,
		&movie.Title,
		&movie.Overview,
		&releaseDate,
		&movie.VoteAverage,
		&movie.AverageRating,
		&movie.PosterPath,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	movie.ReleaseDate = releaseDate
	return movie, nil
}

// NormalizeTitle trims surrounding whitespace and collapses inner runs.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
