// Package auth handles accounts and credentials: registration, password
// login, access/refresh tokens and the middleware that turns a bearer token
// into an authz.Actor.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ErrInvalidCredentials covers unknown accounts, wrong passwords and
// unusable refresh tokens alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenPair is returned by a successful login.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Service implements the account operations.
type Service struct {
	repo       *repository.Repository
	tokens     Tokens
	refreshTTL time.Duration
	hashCost   int
	logger     *zap.Logger
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service.
func NewService(repo *repository.Repository, tokens Tokens, refreshTTL time.Duration, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		hashCost:   bcrypt.DefaultCost,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the verifier used by RequireUser.
func (s *Service) Tokens() Tokens {
	return s.tokens
}

// Register creates a regular account. Duplicate email or username is a
// conflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" {
		return domain.User{}, domain.Validationf("email and username are required")
	}
	if len(in.Password) < MinPasswordLength {
		return domain.User{}, domain.Validationf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.repo.Users.Create(ctx, repository.UserCreateParams{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Login exchanges email and password for a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, hash, err := s.repo.Users.GetCredentials(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh returns a new access token for a live refresh token. The refresh
// token itself stays valid until it expires or is revoked.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	rt, err := s.lookupRefresh(ctx, raw)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := s.repo.Users.GetByID(ctx, rt.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	access, exp, err := s.tokens.NewAccessToken(u, s.now())
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, AccessExpiresAt: exp, Refresh: raw, RefreshExpiresAt: rt.ExpiresAt}, nil
}

// Logout revokes a refresh token belonging to userID.
func (s *Service) Logout(ctx context.Context, userID int64, raw string) error {
	rt, err := s.lookupRefresh(ctx, raw)
	if err != nil {
		return err
	}
	if rt.UserID != userID {
		return ErrInvalidCredentials
	}
	return s.repo.Tokens.Revoke(ctx, rt.Hash)
}

// BootstrapSuperuser creates or promotes the configured administrator.
func (s *Service) BootstrapSuperuser(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(password) < MinPasswordLength {
		return domain.User{}, domain.Validationf("administrator needs an email and a password of at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return domain.User{}, err
	}
	username := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		username = email[:at]
	}
	u, err := s.repo.Users.EnsureSuperuser(ctx, repository.UserCreateParams{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("superuser ready", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

func (s *Service) issue(ctx context.Context, u domain.User) (TokenPair, error) {
	now := s.now()
	access, exp, err := s.tokens.NewAccessToken(u, now)
	if err != nil {
		return TokenPair{}, err
	}
	raw, hash, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := now.Add(s.refreshTTL)
	if err := s.repo.Tokens.Save(ctx, hash, u.ID, refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: raw, AccessExpiresAt: exp, RefreshExpiresAt: refreshExp}, nil
}

func (s *Service) lookupRefresh(ctx context.Context, raw string) (repository.RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return repository.RefreshToken{}, domain.Validationf("refresh token is required")
	}
	rt, err := s.repo.Tokens.Get(ctx, HashRefreshToken(raw))
	if errors.Is(err, domain.ErrNotFound) {
		return repository.RefreshToken{}, ErrInvalidCredentials
	}
	if err != nil {
		return repository.RefreshToken{}, err
	}
	if rt.RevokedAt != nil || !s.now().Before(rt.ExpiresAt) {
		return repository.RefreshToken{}, ErrInvalidCredentials
	}
	return rt, nil
}
