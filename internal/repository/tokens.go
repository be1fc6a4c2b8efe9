package repository

import (
	"context"
	"time"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// TokensRepository stores hashed refresh tokens.
type TokensRepository struct {
	db DBTX
}

// RefreshToken is the persisted state of an issued refresh token.
type RefreshToken struct {
	Hash      string
	UserID    int64
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Save records a newly issued refresh token.
func (r *TokensRepository) Save(ctx context.Context, hash string, userID int64, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1,$2,$3)`,
		hash, userID, expiresAt,
	)
	return translate(err, "refresh token")
}

// Get looks up a refresh token by hash.
func (r *TokensRepository) Get(ctx context.Context, hash string) (RefreshToken, error) {
	var t RefreshToken
	err := r.db.QueryRow(ctx,
		`SELECT token_hash, user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&t.Hash, &t.UserID, &t.ExpiresAt, &t.RevokedAt)
	if err != nil {
		return RefreshToken{}, translate(err, "refresh token")
	}
	return t, nil
}

// Revoke marks a token unusable. Revoking an already revoked token is a no-op;
// an unknown token is not found.
func (r *TokensRepository) Revoke(ctx context.Context, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = COALESCE(revoked_at, now()) WHERE token_hash = $1`,
		hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("refresh token not found")
	}
	return nil
}
