package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/store"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so every repository can
// run either standalone or inside a caller-owned transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Movies  *MoviesRepository
	Ratings *RatingsRepository
	Reviews *ReviewsRepository
	Likes   *LikesRepository
	Watches *WatchesRepository
	Users   *UsersRepository
	Tokens  *TokensRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return bind(pool)
}

// WithTx returns a Repository whose queries run inside tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return bind(tx)
}

func bind(db DBTX) *Repository {
	return &Repository{
		Movies:  &MoviesRepository{db: db},
		Ratings: &RatingsRepository{db: db},
		Reviews: &ReviewsRepository{db: db},
		Likes:   &LikesRepository{db: db},
		Watches: &WatchesRepository{db: db},
		Users:   &UsersRepository{db: db},
		Tokens:  &TokensRepository{db: db},
	}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// translate maps driver errors onto the domain taxonomy. what names the
// entity for messages, e.g. "movie".
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundf("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.Conflictf("%s already exists", what)
		case pgForeignKeyViolation:
			return domain.NotFoundf("%s references a missing record", what)
		case pgCheckViolation:
			return domain.Validationf("%s violates constraint %s", what, pgErr.ConstraintName)
		}
	}
	return err
}
