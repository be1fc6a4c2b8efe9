package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/validation"
)

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	page, err := s.catalog.List(r.Context(), filters)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, movieListResponse{
		Count:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
		HasNext:  page.HasNext(),
		Results:  toMovieResponses(page.Items),
	})
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieCreateRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	release, err := parseDate(req.ReleaseDate)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	movie, err := s.catalog.Create(r.Context(), auth.ActorFromContext(r.Context()), domain.MovieInput{
		TMDBID:      req.TMDBID,
		Title:       req.Title,
		Overview:    req.Overview,
		ReleaseDate: release,
		VoteAverage: req.VoteAverage,
		PosterPath:  req.PosterPath,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/movies/"+strconv.FormatInt(movie.TMDBID, 10))
	s.respondJSON(w, http.StatusCreated, toMovieResponse(movie))
}

// handleGetMovie returns the movie detail including the derived watch count.
func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	movie, err := s.catalog.Get(r.Context(), tmdbID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	watches, err := s.ledger.WatchCount(r.Context(), movie.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	resp := toMovieResponse(movie)
	resp.WatchCount = &watches
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReplaceMovie(w http.ResponseWriter, r *http.Request) {
	s.updateMovie(w, r, true)
}

func (s *Server) handlePatchMovie(w http.ResponseWriter, r *http.Request) {
	s.updateMovie(w, r, false)
}

// updateMovie backs PUT and PATCH. PUT additionally requires a title; fields
// left out keep their stored value in both cases.
func (s *Server) updateMovie(w http.ResponseWriter, r *http.Request, replace bool) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req movieUpdateRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	if replace && req.Title == nil {
		s.respondDomainError(w, r, validation.FieldErrors{"title": "is required"})
		return
	}
	if req.TMDBID != nil && *req.TMDBID != tmdbID {
		s.respondDomainError(w, r, validation.FieldErrors{"tmdb_id": "cannot be changed"})
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	movie, err := s.catalog.Update(r.Context(), auth.ActorFromContext(r.Context()), tmdbID, patch)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := pathID(r, "tmdbID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := s.catalog.Delete(r.Context(), auth.ActorFromContext(r.Context()), tmdbID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRatedMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := s.ledger.RatedMovies(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponses(movies))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.ImportDefaultLimit
	var req importRequest
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.respondDecodeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if req.Limit != nil {
		limit = *req.Limit
	}

	start := time.Now()
	res, err := s.catalog.Import(r.Context(), auth.ActorFromContext(r.Context()), limit)
	if err != nil && res.Saved == 0 {
		s.respondDomainError(w, r, err)
		return
	}

	resp := importResponse{Saved: res.Saved, Skipped: res.Skipped, Pages: res.Pages}
	if err != nil {
		// Batches committed before the failure stay; report what made it.
		s.logger.Warn("import stopped early",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Int("saved", res.Saved),
			zap.Error(err),
		)
		resp.Error = "import stopped early: " + err.Error()
	}
	s.logger.Info("import request finished",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Int("limit", limit),
		zap.Int("saved", res.Saved),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.respondJSON(w, http.StatusOK, resp)
}
