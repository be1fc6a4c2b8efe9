package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// RatingsRepository provides helpers for movie ratings.
type RatingsRepository struct {
	db DBTX
}

// RatingAggregate provides average and count for a movie's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}

const ratingColumns = `r.id, r.movie_id, m.title, r.user_id, r.score, r.created_at, r.updated_at`

// Insert creates a rating row. A second rating by the same user for the same
// movie surfaces as a conflict.
func (r *RatingsRepository) Insert(ctx context.Context, movieID, userID int64, score float64) (domain.Rating, error) {
	query := fmt.Sprintf(`
        WITH r AS (
            INSERT INTO ratings (movie_id, user_id, score)
            VALUES ($1,$2,$3)
            RETURNING id, movie_id, user_id, score, created_at, updated_at
        )
        SELECT %s FROM r JOIN movies m ON m.id = r.movie_id
    `, ratingColumns)

	rating, err := scanRating(r.db.QueryRow(ctx, query, movieID, userID, score))
	if err != nil {
		return domain.Rating{}, translate(err, "rating")
	}
	return rating, nil
}

// Get retrieves a rating by id, scoped to its movie.
func (r *RatingsRepository) Get(ctx context.Context, movieID, ratingID int64) (domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r JOIN movies m ON m.id = r.movie_id
        WHERE r.movie_id = $1 AND r.id = $2
    `, ratingColumns)
	rating, err := scanRating(r.db.QueryRow(ctx, query, movieID, ratingID))
	if err != nil {
		return domain.Rating{}, translate(err, "rating")
	}
	return rating, nil
}

// GetByUser retrieves the rating a user gave a movie.
func (r *RatingsRepository) GetByUser(ctx context.Context, movieID, userID int64) (domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r JOIN movies m ON m.id = r.movie_id
        WHERE r.movie_id = $1 AND r.user_id = $2
    `, ratingColumns)
	rating, err := scanRating(r.db.QueryRow(ctx, query, movieID, userID))
	if err != nil {
		return domain.Rating{}, translate(err, "rating")
	}
	return rating, nil
}

// ListByMovie returns all ratings of a movie in creation order.
func (r *RatingsRepository) ListByMovie(ctx context.Context, movieID int64) ([]domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r JOIN movies m ON m.id = r.movie_id
        WHERE r.movie_id = $1
        ORDER BY r.id
    `, ratingColumns)
	rows, err := r.db.Query(ctx, query, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rating)
	}
	return out, rows.Err()
}

// UpdateScore changes the score of an existing rating.
func (r *RatingsRepository) UpdateScore(ctx context.Context, ratingID int64, score float64) (domain.Rating, error) {
	query := fmt.Sprintf(`
        WITH r AS (
            UPDATE ratings SET score = $2, updated_at = now()
            WHERE id = $1
            RETURNING id, movie_id, user_id, score, created_at, updated_at
        )
        SELECT %s FROM r JOIN movies m ON m.id = r.movie_id
    `, ratingColumns)
	rating, err := scanRating(r.db.QueryRow(ctx, query, ratingID, score))
	if err != nil {
		return domain.Rating{}, translate(err, "rating")
	}
	return rating, nil
}

// Delete removes a rating row.
func (r *RatingsRepository) Delete(ctx context.Context, ratingID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ratings WHERE id = $1`, ratingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("rating not found")
	}
	return nil
}

// Aggregate returns the exact mean and count for a movie's ratings; the mean
// is 0 when there are none.
func (r *RatingsRepository) Aggregate(ctx context.Context, movieID int64) (RatingAggregate, error) {
	const query = `
        SELECT COALESCE(AVG(score), 0)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE movie_id = $1
    `

	var agg RatingAggregate
	if err := r.db.QueryRow(ctx, query, movieID).Scan(&agg.Average, &agg.Count); err != nil {
		return RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.MovieID,
		&rating.MovieTitle,
		&rating.UserID,
		&rating.Score,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	return rating, err
}
