package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Clark-Hu/cinerate/internal/authz"
)

type ctxKeyActor struct{}

// WithActor stores the caller in ctx.
func WithActor(ctx context.Context, a authz.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor{}, a)
}

// ActorFromContext returns the caller set by RequireUser, or the anonymous
// actor.
func ActorFromContext(ctx context.Context) authz.Actor {
	a, _ := ctx.Value(ctxKeyActor{}).(authz.Actor)
	return a
}

// RequireUser validates the bearer token and injects the actor into the
// request context. Requests without a valid token get 401.
func RequireUser(tokens Tokens) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				unauthorized(w, "invalid token subject")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": msg,
	})
}
