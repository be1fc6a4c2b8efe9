package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// ReviewsRepository persists reviews and their like counters.
type ReviewsRepository struct {
	db DBTX
}

const reviewColumns = `id, movie_id, user_id, text, like_count, created_at, updated_at`

// Insert creates a review with a zero like counter.
func (r *ReviewsRepository) Insert(ctx context.Context, movieID, userID int64, text string) (domain.Review, error) {
	query := fmt.Sprintf(`
        INSERT INTO reviews (movie_id, user_id, text)
        VALUES ($1,$2,$3)
        RETURNING %s
    `, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, movieID, userID, text))
	if err != nil {
		return domain.Review{}, translate(err, "review")
	}
	return review, nil
}

// Get retrieves a review scoped to its movie.
func (r *ReviewsRepository) Get(ctx context.Context, movieID, reviewID int64) (domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE movie_id = $1 AND id = $2`, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, movieID, reviewID))
	if err != nil {
		return domain.Review{}, translate(err, "review")
	}
	return review, nil
}

// Lock retrieves a review and holds its row lock for the rest of the
// transaction, serializing like counter updates.
func (r *ReviewsRepository) Lock(ctx context.Context, movieID, reviewID int64) (domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE movie_id = $1 AND id = $2 FOR UPDATE`, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, movieID, reviewID))
	if err != nil {
		return domain.Review{}, translate(err, "review")
	}
	return review, nil
}

// ListByMovie returns a movie's reviews, most liked first.
func (r *ReviewsRepository) ListByMovie(ctx context.Context, movieID int64) ([]domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE movie_id = $1 ORDER BY like_count DESC, id`, reviewColumns)
	rows, err := r.db.Query(ctx, query, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, rows.Err()
}

// UpdateText replaces the body of a review.
func (r *ReviewsRepository) UpdateText(ctx context.Context, reviewID int64, text string) (domain.Review, error) {
	query := fmt.Sprintf(`
        UPDATE reviews SET text = $2, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, reviewID, text))
	if err != nil {
		return domain.Review{}, translate(err, "review")
	}
	return review, nil
}

// Delete removes a review; its likes cascade.
func (r *ReviewsRepository) Delete(ctx context.Context, reviewID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, reviewID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("review not found")
	}
	return nil
}

// AdjustLikeCount adds delta to the like counter and returns the new value.
// The CHECK constraint rejects a result below zero.
func (r *ReviewsRepository) AdjustLikeCount(ctx context.Context, reviewID, delta int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`UPDATE reviews SET like_count = like_count + $2 WHERE id = $1 RETURNING like_count`,
		reviewID, delta,
	).Scan(&count)
	if err != nil {
		return 0, translate(err, "review")
	}
	return count, nil
}

// SyncLikeCount recomputes the counter from the like table and returns it.
func (r *ReviewsRepository) SyncLikeCount(ctx context.Context, reviewID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
        UPDATE reviews
        SET like_count = (SELECT COUNT(*) FROM review_likes WHERE review_id = $1)
        WHERE id = $1
        RETURNING like_count
    `, reviewID).Scan(&count)
	if err != nil {
		return 0, translate(err, "review")
	}
	return count, nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var review domain.Review
	err := row.Scan(
		&review.ID,
		&review.MovieID,
		&review.UserID,
		&review.Text,
		&review.LikeCount,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	return review, err
}
