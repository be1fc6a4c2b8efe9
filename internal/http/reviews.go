package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/cinerate/internal/auth"
)

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	reviews, err := s.ledger.ListReviews(r.Context(), tmdbID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, toReviewResponse(review, tmdbID))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req reviewRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	review, err := s.ledger.CreateReview(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, req.Text)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toReviewResponse(review, tmdbID))
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	tmdbID, reviewID, ok := s.reviewPath(w, r)
	if !ok {
		return
	}

	review, err := s.ledger.GetReview(r.Context(), tmdbID, reviewID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	liked, err := s.ledger.LikedBy(r.Context(), auth.ActorFromContext(r.Context()), review.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	resp := toReviewResponse(review, tmdbID)
	resp.LikedByMe = &liked
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	tmdbID, reviewID, ok := s.reviewPath(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	review, err := s.ledger.UpdateReview(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, reviewID, req.Text)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toReviewResponse(review, tmdbID))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	tmdbID, reviewID, ok := s.reviewPath(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteReview(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, reviewID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	tmdbID, reviewID, ok := s.reviewPath(w, r)
	if !ok {
		return
	}

	change, err := s.ledger.Like(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, reviewID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, likeResponse{Detail: "Review liked.", LikeCount: change.LikeCount})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	tmdbID, reviewID, ok := s.reviewPath(w, r)
	if !ok {
		return
	}

	change, err := s.ledger.Unlike(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, reviewID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, likeResponse{Detail: "Like removed.", LikeCount: change.LikeCount})
}

func (s *Server) reviewPath(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return 0, 0, false
	}
	reviewID, err := pathID(r, "reviewID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return 0, 0, false
	}
	return tmdbID, reviewID, true
}
