package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/authz"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if err := s.auth.Logout(r.Context(), actor.UserID, req.Refresh); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListUsers lists accounts. Emails are only shown to superusers.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	users, err := s.repo.Users.List(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	showEmail := authz.Decide(actor, authz.ActionAdmin, authz.Resource{Kind: "user"}).Allowed
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp := userResponse{ID: u.ID, Username: u.Username}
		if showEmail {
			resp.Email = u.Email
		}
		out = append(out, resp)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func toTokenResponse(p auth.TokenPair) tokenResponse {
	return tokenResponse{
		Access:           p.Access,
		Refresh:          p.Refresh,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
