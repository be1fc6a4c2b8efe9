package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// RatingChange is the result of a rating mutation: the affected rating and
// the movie's average after the change was applied.
type RatingChange struct {
	Rating  domain.Rating
	Average float64
}

// SubmitRating records actor's score for a movie. A second rating by the same
// user is a conflict.
func (l *Ledger) SubmitRating(ctx context.Context, actor authz.Actor, tmdbID int64, score float64) (RatingChange, error) {
	if err := authorize(actor, authz.ActionCreate, authz.Resource{Kind: "rating"}); err != nil {
		return RatingChange{}, err
	}
	if !domain.ValidScore(score) {
		return RatingChange{}, scoreError(score)
	}

	var out RatingChange
	err := l.inTx(ctx, "submit_rating", func(r *repository.Repository) error {
		movie, err := r.Movies.LockByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		rating, err := r.Ratings.Insert(ctx, movie.ID, actor.UserID, score)
		if err != nil {
			return err
		}
		avg, err := l.recomputeAverage(ctx, r, movie.ID)
		if err != nil {
			return err
		}
		out = RatingChange{Rating: rating, Average: avg}
		return nil
	})
	if err != nil {
		return RatingChange{}, err
	}
	return out, nil
}

// UpdateRating changes the score of an existing rating. Only its author may do so.
func (l *Ledger) UpdateRating(ctx context.Context, actor authz.Actor, tmdbID, ratingID int64, score float64) (RatingChange, error) {
	if !domain.ValidScore(score) {
		return RatingChange{}, scoreError(score)
	}

	var out RatingChange
	err := l.inTx(ctx, "update_rating", func(r *repository.Repository) error {
		movie, err := r.Movies.LockByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		existing, err := r.Ratings.Get(ctx, movie.ID, ratingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, authz.ActionUpdate, authz.Owned("rating", existing.UserID)); err != nil {
			return err
		}
		rating, err := r.Ratings.UpdateScore(ctx, existing.ID, score)
		if err != nil {
			return err
		}
		avg, err := l.recomputeAverage(ctx, r, movie.ID)
		if err != nil {
			return err
		}
		out = RatingChange{Rating: rating, Average: avg}
		return nil
	})
	if err != nil {
		return RatingChange{}, err
	}
	return out, nil
}

// DeleteRating removes a rating. The author or a superuser may delete it.
// The returned average reflects the remaining ratings.
func (l *Ledger) DeleteRating(ctx context.Context, actor authz.Actor, tmdbID, ratingID int64) (float64, error) {
	var avg float64
	err := l.inTx(ctx, "delete_rating", func(r *repository.Repository) error {
		movie, err := r.Movies.LockByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		existing, err := r.Ratings.Get(ctx, movie.ID, ratingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, authz.ActionDelete, authz.Owned("rating", existing.UserID)); err != nil {
			return err
		}
		if err := r.Ratings.Delete(ctx, existing.ID); err != nil {
			return err
		}
		avg, err = l.recomputeAverage(ctx, r, movie.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return avg, nil
}

// recomputeAverage sets the movie's average to the mean of its current
// ratings, or 0 when none remain. It must run in the same transaction as the
// rating mutation and after the movie row was locked.
func (l *Ledger) recomputeAverage(ctx context.Context, r *repository.Repository, movieID int64) (float64, error) {
	agg, err := r.Ratings.Aggregate(ctx, movieID)
	if err != nil {
		return 0, err
	}
	if err := r.Movies.SetAverageRating(ctx, movieID, agg.Average); err != nil {
		return 0, err
	}
	l.metrics.IncRecompute()
	l.logger.Debug("average rating recomputed",
		zap.Int64("movie_id", movieID),
		zap.Int64("ratings", agg.Count),
		zap.Float64("average", agg.Average),
	)
	return agg.Average, nil
}

// GetRating returns one rating of a movie.
func (l *Ledger) GetRating(ctx context.Context, tmdbID, ratingID int64) (domain.Rating, error) {
	movie, err := l.repo.Movies.GetByTMDBID(ctx, tmdbID)
	if err != nil {
		return domain.Rating{}, err
	}
	return l.repo.Ratings.Get(ctx, movie.ID, ratingID)
}

// MyRating returns the rating actor gave a movie.
func (l *Ledger) MyRating(ctx context.Context, actor authz.Actor, tmdbID int64) (domain.Rating, error) {
	if err := authorize(actor, authz.ActionRead, authz.Resource{Kind: "rating"}); err != nil {
		return domain.Rating{}, err
	}
	movie, err := l.repo.Movies.GetByTMDBID(ctx, tmdbID)
	if err != nil {
		return domain.Rating{}, err
	}
	return l.repo.Ratings.GetByUser(ctx, movie.ID, actor.UserID)
}

// ListRatings returns every rating of a movie.
func (l *Ledger) ListRatings(ctx context.Context, tmdbID int64) ([]domain.Rating, error) {
	movie, err := l.repo.Movies.GetByTMDBID(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	return l.repo.Ratings.ListByMovie(ctx, movie.ID)
}

// RatedMovies lists the movies actor has rated.
func (l *Ledger) RatedMovies(ctx context.Context, actor authz.Actor) ([]domain.Movie, error) {
	if err := authorize(actor, authz.ActionRead, authz.Resource{Kind: "rating"}); err != nil {
		return nil, err
	}
	return l.repo.Movies.RatedBy(ctx, actor.UserID)
}

func scoreError(score float64) error {
	return domain.Validationf("score %g must be between %g and %g", score, domain.MinScore, domain.MaxScore)
}
