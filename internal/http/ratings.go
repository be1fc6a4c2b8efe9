package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/cinerate/internal/auth"
)

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	ratings, err := s.ledger.ListRatings(r.Context(), tmdbID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]ratingResponse, 0, len(ratings))
	for _, rating := range ratings {
		out = append(out, toRatingResponse(rating, tmdbID))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleSubmitRating stores the caller's rating and returns it together with
// the movie's recomputed average.
func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req ratingRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	change, err := s.ledger.SubmitRating(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, *req.Rating)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	resp := toRatingResponse(change.Rating, tmdbID)
	resp.AverageRating = &change.Average
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	ratingID, err := pathID(r, "ratingID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	rating, err := s.ledger.GetRating(r.Context(), tmdbID, ratingID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating, tmdbID))
}

// handleMyRating returns the caller's own rating of the movie.
func (s *Server) handleMyRating(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	rating, err := s.ledger.MyRating(r.Context(), auth.ActorFromContext(r.Context()), tmdbID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating, tmdbID))
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	ratingID, err := pathID(r, "ratingID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req ratingRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	change, err := s.ledger.UpdateRating(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, ratingID, *req.Rating)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	resp := toRatingResponse(change.Rating, tmdbID)
	resp.AverageRating = &change.Average
	s.respondJSON(w, http.StatusOK, resp)
}

// handleDeleteRating answers with the average left after the removal.
func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	ratingID, err := pathID(r, "ratingID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	average, err := s.ledger.DeleteRating(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, ratingID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]float64{"average_rating": average})
}
