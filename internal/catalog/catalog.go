// Package catalog manages the movie catalog: administrator CRUD keyed by the
// external catalog id, lookups against the external catalog and bulk import
// of its popular listing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/ledger"
	"github.com/Clark-Hu/cinerate/internal/metrics"
	"github.com/Clark-Hu/cinerate/internal/repository"
	"github.com/Clark-Hu/cinerate/internal/tmdb"
)

// ErrCatalogDisabled is returned by upstream-backed calls when no external
// catalog client is configured.
var ErrCatalogDisabled = errors.New("external catalog is not configured")

const (
	defaultBatchSize = 100
	maxImportPages   = 500
)

// Service implements catalog operations.
type Service struct {
	tx        ledger.TxRunner
	repo      *repository.Repository
	client    tmdb.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	batchSize int
}

// New builds a Service. client may be nil when the external catalog is not
// configured; logger and m may be nil.
func New(tx ledger.TxRunner, repo *repository.Repository, client tmdb.Client, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:        tx,
		repo:      repo,
		client:    client,
		logger:    logger,
		metrics:   m,
		batchSize: defaultBatchSize,
	}
}

// List returns a page of the catalog ordered by internal id.
func (s *Service) List(ctx context.Context, filters repository.MovieListFilters) (repository.MoviePage, error) {
	return s.repo.Movies.List(ctx, filters)
}

// Get returns a movie by its external catalog id.
func (s *Service) Get(ctx context.Context, tmdbID int64) (domain.Movie, error) {
	return s.repo.Movies.GetByTMDBID(ctx, tmdbID)
}

// Create adds a movie. Only superusers may write to the catalog.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in domain.MovieInput) (domain.Movie, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Movie{}, err
	}
	in, err := normalizeInput(in)
	if err != nil {
		return domain.Movie{}, err
	}
	movie, err := s.repo.Movies.Create(ctx, in)
	if err != nil {
		return domain.Movie{}, err
	}
	s.logger.Info("movie created", zap.Int64("tmdb_id", movie.TMDBID), zap.String("title", movie.Title))
	return movie, nil
}

// Update applies a partial update. The average rating is not writable here.
func (s *Service) Update(ctx context.Context, actor authz.Actor, tmdbID int64, patch domain.MoviePatch) (domain.Movie, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Movie{}, err
	}
	if patch.Title != nil {
		title := repository.NormalizeTitle(*patch.Title)
		if title == "" {
			return domain.Movie{}, domain.Validationf("title must not be empty")
		}
		patch.Title = &title
	}
	if patch.VoteAverage != nil && !validVote(*patch.VoteAverage) {
		return domain.Movie{}, domain.Validationf("vote_average must be between 0 and 10")
	}
	return s.repo.Movies.Update(ctx, tmdbID, patch)
}

// Delete removes a movie together with its ratings, reviews, likes and watch
// events.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, tmdbID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.repo.Movies.Delete(ctx, tmdbID); err != nil {
		return err
	}
	s.logger.Info("movie deleted", zap.Int64("tmdb_id", tmdbID))
	return nil
}

// Search queries the external catalog by title.
func (s *Service) Search(ctx context.Context, actor authz.Actor, query string) ([]tmdb.Movie, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.Validationf("query is required")
	}
	if s.client == nil {
		return nil, ErrCatalogDisabled
	}
	return s.client.Search(ctx, query)
}

// AddFromCatalog fetches a movie from the external catalog, applies the
// caller's overrides and stores it. A movie already in the catalog is a
// conflict.
func (s *Service) AddFromCatalog(ctx context.Context, actor authz.Actor, tmdbID int64, overrides domain.MoviePatch) (domain.Movie, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Movie{}, err
	}
	if tmdbID <= 0 {
		return domain.Movie{}, domain.Validationf("tmdb_id must be positive")
	}
	if s.client == nil {
		return domain.Movie{}, ErrCatalogDisabled
	}

	if _, err := s.repo.Movies.GetByTMDBID(ctx, tmdbID); err == nil {
		return domain.Movie{}, domain.Conflictf("movie %d already exists", tmdbID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Movie{}, err
	}

	upstream, err := s.client.Movie(ctx, tmdbID)
	if errors.Is(err, tmdb.ErrNotFound) {
		return domain.Movie{}, domain.NotFoundf("movie %d not found in external catalog", tmdbID)
	}
	if err != nil {
		return domain.Movie{}, fmt.Errorf("fetch movie %d: %w", tmdbID, err)
	}

	in := applyOverrides(fromUpstream(upstream), overrides)
	in.TMDBID = tmdbID
	return s.Create(ctx, actor, in)
}

func fromUpstream(m tmdb.Movie) domain.MovieInput {
	return domain.MovieInput{
		TMDBID:      m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		VoteAverage: m.VoteAverage,
		PosterPath:  m.PosterPath,
	}
}

func applyOverrides(in domain.MovieInput, p domain.MoviePatch) domain.MovieInput {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Overview != nil {
		in.Overview = *p.Overview
	}
	if p.ReleaseDate != nil {
		in.ReleaseDate = p.ReleaseDate
	}
	if p.VoteAverage != nil {
		in.VoteAverage = *p.VoteAverage
	}
	if p.PosterPath != nil {
		in.PosterPath = *p.PosterPath
	}
	return in
}

func normalizeInput(in domain.MovieInput) (domain.MovieInput, error) {
	in.Title = repository.NormalizeTitle(in.Title)
	if in.TMDBID <= 0 {
		return in, domain.Validationf("tmdb_id must be positive")
	}
	if in.Title == "" {
		return in, domain.Validationf("title must not be empty")
	}
	if !validVote(in.VoteAverage) {
		return in, domain.Validationf("vote_average must be between 0 and 10")
	}
	return in, nil
}

func validVote(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 10
}

func requireAdmin(actor authz.Actor) error {
	d := authz.Decide(actor, authz.ActionAdmin, authz.Resource{Kind: "movie"})
	if !d.Allowed {
		return domain.Permissionf("%s", d.Reason)
	}
	return nil
}
