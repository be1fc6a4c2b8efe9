package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// WatchesRepository is the append-only watch history log.
type WatchesRepository struct {
	db DBTX
}

const watchSelect = `
    SELECT w.id, w.user_id, u.username, w.movie_id, m.tmdb_id, m.title, w.watched_at
    FROM watched w
    JOIN users u ON u.id = w.user_id
    JOIN movies m ON m.id = w.movie_id
`

// Insert appends a watch event stamped with the server clock.
func (r *WatchesRepository) Insert(ctx context.Context, userID, movieID int64) (domain.WatchEvent, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO watched (user_id, movie_id) VALUES ($1,$2) RETURNING id`,
		userID, movieID,
	).Scan(&id)
	if err != nil {
		return domain.WatchEvent{}, translate(err, "watch event")
	}
	event, err := scanWatch(r.db.QueryRow(ctx, watchSelect+` WHERE w.id = $1`, id))
	if err != nil {
		return domain.WatchEvent{}, translate(err, "watch event")
	}
	return event, nil
}

// ListByUser returns a user's history, newest first.
func (r *WatchesRepository) ListByUser(ctx context.Context, userID int64) ([]domain.WatchEvent, error) {
	rows, err := r.db.Query(ctx, watchSelect+` WHERE w.user_id = $1 ORDER BY w.watched_at DESC, w.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.WatchEvent, 0)
	for rows.Next() {
		event, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// CountByMovie derives how many users watched a movie.
func (r *WatchesRepository) CountByMovie(ctx context.Context, movieID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM watched WHERE movie_id = $1`, movieID).Scan(&n)
	return n, err
}

func scanWatch(row pgx.Row) (domain.WatchEvent, error) {
	var e domain.WatchEvent
	err := row.Scan(&e.ID, &e.UserID, &e.Username, &e.MovieID, &e.TMDBID, &e.MovieTitle, &e.WatchedAt)
	return e, err
}
