package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// UsersRepository persists accounts.
type UsersRepository struct {
	db DBTX
}

// UserCreateParams bundles the fields required to create an account.
type UserCreateParams struct {
	Email        string
	Username     string
	PasswordHash string
	IsSuperuser  bool
}

const userColumns = `id, email, username, is_superuser, created_at`

// Create inserts a user; duplicate email or username is a conflict.
func (r *UsersRepository) Create(ctx context.Context, p UserCreateParams) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `
        INSERT INTO users (email, username, password_hash, is_superuser)
        VALUES ($1,$2,$3,$4)
        RETURNING `+userColumns,
		strings.TrimSpace(p.Email), strings.TrimSpace(p.Username), p.PasswordHash, p.IsSuperuser,
	))
	if err != nil {
		return domain.User{}, translate(err, "user")
	}
	return user, nil
}

// EnsureSuperuser creates the account or promotes an existing one with the
// same email, resetting its password.
func (r *UsersRepository) EnsureSuperuser(ctx context.Context, p UserCreateParams) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `
        INSERT INTO users (email, username, password_hash, is_superuser)
        VALUES ($1,$2,$3,TRUE)
        ON CONFLICT (lower(email)) DO UPDATE
        SET password_hash = EXCLUDED.password_hash, is_superuser = TRUE
        RETURNING `+userColumns,
		strings.TrimSpace(p.Email), strings.TrimSpace(p.Username), p.PasswordHash,
	))
	if err != nil {
		return domain.User{}, translate(err, "user")
	}
	return user, nil
}

// GetByID fetches a user.
func (r *UsersRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, translate(err, "user")
	}
	return user, nil
}

// GetCredentials returns the user and stored password hash for an email.
func (r *UsersRepository) GetCredentials(ctx context.Context, email string) (domain.User, string, error) {
	var (
		user domain.User
		hash string
	)
	err := r.db.QueryRow(ctx, `
        SELECT id, email, username, is_superuser, created_at, password_hash
        FROM users WHERE lower(email) = lower($1)
    `, strings.TrimSpace(email)).Scan(&user.ID, &user.Email, &user.Username, &user.IsSuperuser, &user.CreatedAt, &hash)
	if err != nil {
		return domain.User{}, "", translate(err, "user")
	}
	return user, hash, nil
}

// List returns all users ordered by id.
func (r *UsersRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.IsSuperuser, &u.CreatedAt)
	return u, err
}
