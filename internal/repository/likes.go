package repository

import (
	"context"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// LikesRepository persists review likes.
type LikesRepository struct {
	db DBTX
}

// Insert records a like. A repeat like by the same user is a conflict.
func (r *LikesRepository) Insert(ctx context.Context, reviewID, userID int64) (domain.Like, error) {
	var like domain.Like
	err := r.db.QueryRow(ctx, `
        INSERT INTO review_likes (review_id, user_id)
        VALUES ($1,$2)
        RETURNING id, review_id, user_id, created_at
    `, reviewID, userID).Scan(&like.ID, &like.ReviewID, &like.UserID, &like.CreatedAt)
	if err != nil {
		return domain.Like{}, translate(err, "like")
	}
	return like, nil
}

// Delete removes the like a user gave a review.
func (r *LikesRepository) Delete(ctx context.Context, reviewID, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM review_likes WHERE review_id = $1 AND user_id = $2`, reviewID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("like not found")
	}
	return nil
}

// Count returns the number of likes on a review.
func (r *LikesRepository) Count(ctx context.Context, reviewID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM review_likes WHERE review_id = $1`, reviewID).Scan(&n)
	return n, err
}

// Exists reports whether userID liked reviewID.
func (r *LikesRepository) Exists(ctx context.Context, reviewID, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM review_likes WHERE review_id = $1 AND user_id = $2)`,
		reviewID, userID,
	).Scan(&ok)
	return ok, err
}
