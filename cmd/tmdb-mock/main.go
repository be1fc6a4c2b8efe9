// Command tmdb-mock serves a small TMDB-compatible catalog from a JSON file so
// the import and admin endpoints can run without an upstream account.
package main

import (
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/logging"
)

//go:embed movies.json
var defaultData []byte

type movieEntry struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	ReleaseDate string   `json:"release_date"`
	VoteAverage *float64 `json:"vote_average"`
	PosterPath  *string  `json:"poster_path"`
}

type listResponse struct {
	Page         int          `json:"page"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
	Results      []movieEntry `json:"results"`
}

type mockCatalog struct {
	movies   []movieEntry
	byID     map[int64]movieEntry
	pageSize int
	apiKey   string
	logger   *zap.Logger
}

func main() {
	var (
		port     = flag.String("port", "9099", "port to listen on")
		data     = flag.String("data", "", "path to mock data file (defaults to the built-in set)")
		apiKey   = flag.String("api-key", "", "require this api_key query parameter when set")
		pageSize = flag.Int("page-size", 20, "results per popular page")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	raw := defaultData
	if *data != "" {
		if raw, err = os.ReadFile(*data); err != nil {
			logger.Fatal("read mock data", zap.Error(err))
		}
	}
	cat, err := newMockCatalog(raw, *pageSize, *apiKey, logger)
	if err != nil {
		logger.Fatal("parse mock data", zap.Error(err))
	}

	addr := ":" + *port
	logger.Info("mock tmdb listening", zap.String("addr", addr), zap.Int("movies", len(cat.movies)))
	if err := http.ListenAndServe(addr, cat.routes()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newMockCatalog(raw []byte, pageSize int, apiKey string, logger *zap.Logger) (*mockCatalog, error) {
	var movies []movieEntry
	if err := json.Unmarshal(raw, &movies); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	// Popular order: best voted first, id as tie breaker.
	sort.SliceStable(movies, func(i, j int) bool {
		vi, vj := vote(movies[i]), vote(movies[j])
		if vi != vj {
			return vi > vj
		}
		return movies[i].ID < movies[j].ID
	})
	byID := make(map[int64]movieEntry, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}
	return &mockCatalog{movies: movies, byID: byID, pageSize: pageSize, apiKey: apiKey, logger: logger}, nil
}

func (c *mockCatalog) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(c.requireKey)
	r.Route("/3", func(r chi.Router) {
		r.Get("/movie/popular", c.handlePopular)
		r.Get("/movie/{id}", c.handleMovie)
		r.Get("/search/movie", c.handleSearch)
	})
	return r
}

func (c *mockCatalog) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.Debug("mock request", zap.String("path", r.URL.Path), zap.String("query", r.URL.Query().Get("query")))
		if c.apiKey != "" && r.URL.Query().Get("api_key") != c.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status_code": 7, "status_message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *mockCatalog) handlePopular(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	totalPages := (len(c.movies) + c.pageSize - 1) / c.pageSize
	resp := listResponse{Page: page, TotalPages: totalPages, TotalResults: len(c.movies), Results: []movieEntry{}}
	start := (page - 1) * c.pageSize
	if start < len(c.movies) {
		end := min(start+c.pageSize, len(c.movies))
		resp.Results = c.movies[start:end]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *mockCatalog) handleMovie(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	m, ok := c.byID[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status_code": 34, "status_message": "The resource you requested could not be found."})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (c *mockCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	hits := []movieEntry{}
	if q != "" {
		for _, m := range c.movies {
			if strings.Contains(strings.ToLower(m.Title), q) {
				hits = append(hits, m)
			}
		}
	}
	writeJSON(w, http.StatusOK, listResponse{Page: 1, TotalPages: 1, TotalResults: len(hits), Results: hits})
}

func vote(m movieEntry) float64 {
	if m.VoteAverage == nil {
		return 0
	}
	return *m.VoteAverage
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
