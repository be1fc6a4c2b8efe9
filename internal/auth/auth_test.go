package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/pgtest"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestAccessTokenRoundTrip(t *testing.T) {
	tokens := Tokens{Secret: testSecret, AccessTTL: time.Minute}
	now := time.Now().UTC()

	signed, exp, err := tokens.NewAccessToken(domain.User{ID: 42, IsSuperuser: true}, now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !exp.Equal(now.Add(time.Minute)) {
		t.Fatalf("exp = %v, want %v", exp, now.Add(time.Minute))
	}

	claims, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	actor, err := claims.Actor()
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	if actor != (authz.Actor{UserID: 42, IsSuperuser: true}) {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestParseRejects(t *testing.T) {
	tokens := Tokens{Secret: testSecret, AccessTTL: time.Minute}
	past := time.Now().Add(-time.Hour)
	expired, _, err := tokens.NewAccessToken(domain.User{ID: 1}, past)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	otherKey, _, err := Tokens{Secret: []byte("another-secret-another-secret-xx"), AccessTTL: time.Minute}.
		NewAccessToken(domain.User{ID: 1}, time.Time{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign no exp: %v", err)
	}

	for name, tok := range map[string]string{
		"expired":     expired,
		"wrong key":   otherKey,
		"alg none":    none,
		"no expiry":   noExp,
		"garbage":     "not.a.jwt",
		"empty token": "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := tokens.Parse(tok); err == nil {
				t.Fatalf("Parse accepted %s token", name)
			}
		})
	}
}

func TestClaimsActorRejectsBadSubject(t *testing.T) {
	for _, sub := range []string{"", "abc", "0", "-3"} {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
		if _, err := c.Actor(); err == nil {
			t.Fatalf("subject %q accepted", sub)
		}
	}
}

func TestRefreshTokenHash(t *testing.T) {
	raw, hash, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("new refresh: %v", err)
	}
	if len(raw) != 43 {
		t.Fatalf("raw length = %d, want 43", len(raw))
	}
	if hash != HashRefreshToken(raw) || len(hash) != 64 {
		t.Fatalf("hash mismatch: %q", hash)
	}
	other, _, _ := NewRefreshToken()
	if other == raw {
		t.Fatalf("refresh tokens repeat")
	}
}

func TestRequireUser(t *testing.T) {
	tokens := Tokens{Secret: testSecret, AccessTTL: time.Minute}
	valid, _, err := tokens.NewAccessToken(domain.User{ID: 7}, time.Time{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var seen authz.Actor
	h := RequireUser(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = authz.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen.UserID != 7 {
				t.Fatalf("actor = %+v, want user 7", seen)
			}
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "UNAUTHORIZED") {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestActorFromEmptyContext(t *testing.T) {
	if a := ActorFromContext(context.Background()); a.Authenticated() {
		t.Fatalf("anonymous context produced %+v", a)
	}
}

type serviceEnv struct {
	ctx   context.Context
	svc   *Service
	repo  *repository.Repository
	clock *time.Time
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	pool := pgtest.Start(t, "auth_test")
	repo := repository.NewWithPool(pool)
	now := time.Now().UTC()
	env := &serviceEnv{ctx: context.Background(), repo: repo, clock: &now}
	env.svc = NewService(repo, Tokens{Secret: testSecret, AccessTTL: 15 * time.Minute}, time.Hour, zap.NewNop(),
		WithHashCost(bcrypt.MinCost),
		WithClock(func() time.Time { return *env.clock }),
	)
	return env
}

func TestServiceRegisterAndLogin(t *testing.T) {
	env := newServiceEnv(t)

	u, err := env.svc.Register(env.ctx, RegisterInput{Email: "alice@example.com", Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.IsSuperuser {
		t.Fatalf("registered user is superuser")
	}

	if _, err := env.svc.Register(env.ctx, RegisterInput{Email: "ALICE@example.com", Username: "alice2", Password: "correct-horse"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email err = %v, want conflict", err)
	}
	if _, err := env.svc.Register(env.ctx, RegisterInput{Email: "b@example.com", Username: "b", Password: "short"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short password err = %v, want validation", err)
	}

	pair, err := env.svc.Login(env.ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := env.svc.Tokens().Parse(pair.Access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if actor, _ := claims.Actor(); actor.UserID != u.ID {
		t.Fatalf("access token subject = %+v, want %d", actor, u.ID)
	}

	for _, tc := range []struct{ email, password string }{
		{"alice@example.com", "wrong-password"},
		{"nobody@example.com", "correct-horse"},
	} {
		if _, err := env.svc.Login(env.ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("login(%s) err = %v, want invalid credentials", tc.email, err)
		}
	}
}

func TestServiceRefreshAndLogout(t *testing.T) {
	env := newServiceEnv(t)
	u, err := env.svc.Register(env.ctx, RegisterInput{Email: "bob@example.com", Username: "bob", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := env.svc.Login(env.ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := env.svc.Refresh(env.ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Access == "" || refreshed.Refresh != pair.Refresh {
		t.Fatalf("refreshed = %+v", refreshed)
	}

	if _, err := env.svc.Refresh(env.ctx, "unknown"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown refresh err = %v", err)
	}
	if _, err := env.svc.Refresh(env.ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank refresh err = %v", err)
	}
	if err := env.svc.Logout(env.ctx, u.ID+1, pair.Refresh); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("logout by other user err = %v", err)
	}
	if err := env.svc.Logout(env.ctx, u.ID, pair.Refresh); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.svc.Refresh(env.ctx, pair.Refresh); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("refresh after logout err = %v", err)
	}

	second, err := env.svc.Login(env.ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	*env.clock = env.clock.Add(2 * time.Hour)
	if _, err := env.svc.Refresh(env.ctx, second.Refresh); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expired refresh err = %v", err)
	}
}

func TestBootstrapSuperuser(t *testing.T) {
	env := newServiceEnv(t)
	if _, err := env.svc.Register(env.ctx, RegisterInput{Email: "root@example.com", Username: "rooty", Password: "password123"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	u, err := env.svc.BootstrapSuperuser(env.ctx, "root@example.com", "new-admin-pass")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !u.IsSuperuser || u.Username != "rooty" {
		t.Fatalf("bootstrapped user = %+v", u)
	}
	if _, err := env.svc.Login(env.ctx, "root@example.com", "new-admin-pass"); err != nil {
		t.Fatalf("login with bootstrap password: %v", err)
	}

	fresh, err := env.svc.BootstrapSuperuser(env.ctx, "ops@example.com", "another-pass")
	if err != nil {
		t.Fatalf("bootstrap new: %v", err)
	}
	if fresh.Username != "ops" || !fresh.IsSuperuser {
		t.Fatalf("new superuser = %+v", fresh)
	}
	if _, err := env.svc.BootstrapSuperuser(env.ctx, "", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty bootstrap err = %v", err)
	}
}
