package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/cinerate/internal/auth"
)

func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.ledger.WatchHistory(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]watchResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toWatchResponse(e))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecordWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	event, err := s.ledger.RecordWatch(r.Context(), auth.ActorFromContext(r.Context()), req.Movie)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toWatchResponse(event))
}
