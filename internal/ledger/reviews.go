package ledger

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// MaxReviewLength bounds review text in characters.
const MaxReviewLength = 5000

// LikeChange reports a review's like counter after a like or unlike.
type LikeChange struct {
	ReviewID  int64
	LikeCount int64
}

// CreateReview stores actor's review of a movie. One review per user and movie.
func (l *Ledger) CreateReview(ctx context.Context, actor authz.Actor, tmdbID int64, text string) (domain.Review, error) {
	if err := authorize(actor, authz.ActionCreate, authz.Resource{Kind: "review"}); err != nil {
		return domain.Review{}, err
	}
	text, err := cleanReviewText(text)
	if err != nil {
		return domain.Review{}, err
	}

	var out domain.Review
	err = l.inTx(ctx, "create_review", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		out, err = r.Reviews.Insert(ctx, movie.ID, actor.UserID, text)
		return err
	})
	if err != nil {
		return domain.Review{}, err
	}
	return out, nil
}

// UpdateReview replaces the text of a review. Only its author may edit it.
func (l *Ledger) UpdateReview(ctx context.Context, actor authz.Actor, tmdbID, reviewID int64, text string) (domain.Review, error) {
	text, err := cleanReviewText(text)
	if err != nil {
		return domain.Review{}, err
	}

	var out domain.Review
	err = l.inTx(ctx, "update_review", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		existing, err := r.Reviews.Lock(ctx, movie.ID, reviewID)
		if err != nil {
			return err
		}
		if err := authorize(actor, authz.ActionUpdate, authz.Owned("review", existing.UserID)); err != nil {
			return err
		}
		out, err = r.Reviews.UpdateText(ctx, existing.ID, text)
		return err
	})
	if err != nil {
		return domain.Review{}, err
	}
	return out, nil
}

// DeleteReview removes a review and its likes. The author or a superuser may
// delete it.
func (l *Ledger) DeleteReview(ctx context.Context, actor authz.Actor, tmdbID, reviewID int64) error {
	return l.inTx(ctx, "delete_review", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		existing, err := r.Reviews.Lock(ctx, movie.ID, reviewID)
		if err != nil {
			return err
		}
		if err := authorize(actor, authz.ActionDelete, authz.Owned("review", existing.UserID)); err != nil {
			return err
		}
		return r.Reviews.Delete(ctx, existing.ID)
	})
}

// GetReview returns one review of a movie.
func (l *Ledger) GetReview(ctx context.Context, tmdbID, reviewID int64) (domain.Review, error) {
	movie, err := l.repo.Movies.GetByTMDBID(ctx, tmdbID)
	if err != nil {
		return domain.Review{}, err
	}
	return l.repo.Reviews.Get(ctx, movie.ID, reviewID)
}

// LikedBy reports whether actor currently likes the review.
func (l *Ledger) LikedBy(ctx context.Context, actor authz.Actor, reviewID int64) (bool, error) {
	if !actor.Authenticated() {
		return false, nil
	}
	return l.repo.Likes.Exists(ctx, reviewID, actor.UserID)
}

// ListReviews returns a movie's reviews, most liked first.
func (l *Ledger) ListReviews(ctx context.Context, tmdbID int64) ([]domain.Review, error) {
	movie, err := l.repo.Movies.GetByTMDBID(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	return l.repo.Reviews.ListByMovie(ctx, movie.ID)
}

// Like records that actor likes a review and bumps its counter. Liking the
// same review twice is a conflict and leaves the counter unchanged.
func (l *Ledger) Like(ctx context.Context, actor authz.Actor, tmdbID, reviewID int64) (LikeChange, error) {
	if err := authorize(actor, authz.ActionCreate, authz.Resource{Kind: "like"}); err != nil {
		return LikeChange{}, err
	}

	var out LikeChange
	err := l.inTx(ctx, "like", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		review, err := r.Reviews.Lock(ctx, movie.ID, reviewID)
		if err != nil {
			return err
		}
		if _, err := r.Likes.Insert(ctx, review.ID, actor.UserID); err != nil {
			return err
		}
		count, err := r.Reviews.AdjustLikeCount(ctx, review.ID, 1)
		if err != nil {
			return err
		}
		out = LikeChange{ReviewID: review.ID, LikeCount: count}
		return nil
	})
	if err != nil {
		return LikeChange{}, err
	}
	return out, nil
}

// Unlike withdraws actor's like and decrements the counter. It fails with
// not found when actor never liked the review.
func (l *Ledger) Unlike(ctx context.Context, actor authz.Actor, tmdbID, reviewID int64) (LikeChange, error) {
	// Only the caller's own like row is ever removed, so the standing needed
	// is the same as for giving one.
	if err := authorize(actor, authz.ActionCreate, authz.Resource{Kind: "like"}); err != nil {
		return LikeChange{}, err
	}

	var out LikeChange
	err := l.inTx(ctx, "unlike", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		review, err := r.Reviews.Lock(ctx, movie.ID, reviewID)
		if err != nil {
			return err
		}
		if err := r.Likes.Delete(ctx, review.ID, actor.UserID); err != nil {
			return err
		}

		var count int64
		if review.LikeCount < 1 {
			// Counter drifted below the like rows; rebuild instead of
			// tripping the non-negative check.
			count, err = r.Reviews.SyncLikeCount(ctx, review.ID)
			l.metrics.IncLikeRepair()
			l.logger.Warn("like count drift repaired",
				zap.Int64("review_id", review.ID),
				zap.Int64("stored", review.LikeCount),
				zap.Int64("actual", count),
			)
		} else {
			count, err = r.Reviews.AdjustLikeCount(ctx, review.ID, -1)
		}
		if err != nil {
			return err
		}
		out = LikeChange{ReviewID: review.ID, LikeCount: count}
		return nil
	})
	if err != nil {
		return LikeChange{}, err
	}
	return out, nil
}

// ReconcileLikeCount rebuilds a review's counter from its like rows. It is a
// repair path and is not needed for normal operation.
func (l *Ledger) ReconcileLikeCount(ctx context.Context, reviewID int64) (int64, error) {
	var count int64
	err := l.inTx(ctx, "reconcile_likes", func(r *repository.Repository) error {
		var err error
		count, err = r.Reviews.SyncLikeCount(ctx, reviewID)
		return err
	})
	return count, err
}

func cleanReviewText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Validationf("review text must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxReviewLength {
		return "", domain.Validationf("review text must be at most %d characters", MaxReviewLength)
	}
	return text, nil
}
