package httpserver

import (
	"net/http"
	"strconv"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/domain"
)

// handleAdminSearch looks titles up in the external catalog.
func (s *Server) handleAdminSearch(w http.ResponseWriter, r *http.Request) {
	hits, err := s.catalog.Search(r.Context(), auth.ActorFromContext(r.Context()), r.URL.Query().Get("query"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]catalogMovieResponse, 0, len(hits))
	for _, m := range hits {
		out = append(out, toCatalogMovieResponse(m))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleAdminAdd copies one movie from the external catalog, applying any
// overrides from the request.
func (s *Server) handleAdminAdd(w http.ResponseWriter, r *http.Request) {
	var req adminAddRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	var overrides domain.MoviePatch
	if req.Overrides != nil {
		var err error
		if overrides, err = req.Overrides.patch(); err != nil {
			s.respondDomainError(w, r, err)
			return
		}
	}

	movie, err := s.catalog.AddFromCatalog(r.Context(), auth.ActorFromContext(r.Context()), req.TMDBID, overrides)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/movies/"+strconv.FormatInt(movie.TMDBID, 10))
	s.respondJSON(w, http.StatusCreated, toMovieResponse(movie))
}
