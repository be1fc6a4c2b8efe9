package ledger

import (
	"context"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// RecordWatch appends a watch event for actor. Events are immutable and each
// user can log a movie once.
func (l *Ledger) RecordWatch(ctx context.Context, actor authz.Actor, tmdbID int64) (domain.WatchEvent, error) {
	if err := authorize(actor, authz.ActionCreate, authz.Resource{Kind: "watch event"}); err != nil {
		return domain.WatchEvent{}, err
	}

	var out domain.WatchEvent
	err := l.inTx(ctx, "record_watch", func(r *repository.Repository) error {
		movie, err := r.Movies.GetByTMDBID(ctx, tmdbID)
		if err != nil {
			return err
		}
		out, err = r.Watches.Insert(ctx, actor.UserID, movie.ID)
		return err
	})
	if err != nil {
		return domain.WatchEvent{}, err
	}
	return out, nil
}

// WatchHistory lists actor's watch events, newest first.
func (l *Ledger) WatchHistory(ctx context.Context, actor authz.Actor) ([]domain.WatchEvent, error) {
	if err := authorize(actor, authz.ActionRead, authz.Resource{Kind: "watch event"}); err != nil {
		return nil, err
	}
	return l.repo.Watches.ListByUser(ctx, actor.UserID)
}

// WatchCount derives how many users logged a movie.
func (l *Ledger) WatchCount(ctx context.Context, movieID int64) (int64, error) {
	return l.repo.Watches.CountByMovie(ctx, movieID)
}
