// Package tmdb is a client for a TMDB-compatible movie catalog API. Payloads
// from the upstream are treated as untrusted: malformed dates become nil and
// missing fields fall back to zero values.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/metrics"
)

var (
	// ErrNotFound is returned when the upstream has no such movie.
	ErrNotFound = errors.New("tmdb: not found")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("tmdb: service unavailable")
)

const (
	dateLayout  = "2006-01-02"
	breakerName = "tmdb-api"
	maxBodySize = 4 << 20
)

// Movie is one catalog entry as reported by the upstream.
type Movie struct {
	ID          int64
	Title       string
	Overview    string
	ReleaseDate *time.Time
	VoteAverage float64
	PosterPath  string
}

// Page is one page of a paginated listing.
type Page struct {
	Page       int
	TotalPages int
	Results    []Movie
}

// Client defines the calls the catalog needs from the upstream.
type Client interface {
	Search(ctx context.Context, query string) ([]Movie, error)
	Movie(ctx context.Context, id int64) (Movie, error)
	Popular(ctx context.Context, page int) (Page, error)
}

// Options configures HTTPClient.
type Options struct {
	BaseURL      string
	APIKey       string
	ImageBaseURL string
	Timeout      time.Duration
}

// HTTPClient implements Client over HTTP behind a circuit breaker.
type HTTPClient struct {
	baseURL   *url.URL
	apiKey    string
	imageBase string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewHTTPClient constructs a client. logger and m may be nil.
func NewHTTPClient(opts Options, logger *zap.Logger, m *metrics.Metrics) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse tmdb url: %q is not absolute", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &HTTPClient{
		baseURL:   parsed,
		apiKey:    opts.APIKey,
		imageBase: strings.TrimRight(opts.ImageBaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger:  logger,
		metrics: m,
	}

	m.SetBreakerState(breakerName, 0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing movie or a caller giving up says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("tmdb: circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, stateValue(to))
		},
	})
	return c, nil
}

// Search looks up movies by free-text title.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("tmdb: empty search query")
	}
	var payload listResponse
	if err := c.getJSON(ctx, "search", []string{"search", "movie"}, url.Values{"query": {query}}, &payload); err != nil {
		return nil, err
	}
	return c.convertAll(payload.Results), nil
}

// Movie fetches a single movie by its catalog id.
func (c *HTTPClient) Movie(ctx context.Context, id int64) (Movie, error) {
	var payload apiMovie
	if err := c.getJSON(ctx, "movie", []string{"movie", strconv.FormatInt(id, 10)}, nil, &payload); err != nil {
		return Movie{}, err
	}
	if payload.ID == 0 {
		payload.ID = id
	}
	return c.convert(payload), nil
}

// Popular returns one page (1-based) of the popular listing.
func (c *HTTPClient) Popular(ctx context.Context, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	var payload listResponse
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.getJSON(ctx, "popular", []string{"movie", "popular"}, q, &payload); err != nil {
		return Page{}, err
	}
	return Page{
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
		Results:    c.convertAll(payload.Results),
	}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, path []string, q url.Values, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, path, q)
	})
	c.metrics.ObserveCatalog(endpoint, err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode tmdb %s response: %w", endpoint, err)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path []string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL.JoinPath(path...)
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read tmdb response: %w", err)
		}
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn("tmdb: unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.String("path", strings.Join(path, "/")),
		)
		return nil, fmt.Errorf("tmdb: upstream returned %d", resp.StatusCode)
	}
}

type listResponse struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Results    []apiMovie `json:"results"`
}

type apiMovie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	ReleaseDate string   `json:"release_date"`
	VoteAverage *float64 `json:"vote_average"`
	PosterPath  *string  `json:"poster_path"`
}

func (c *HTTPClient) convertAll(in []apiMovie) []Movie {
	out := make([]Movie, 0, len(in))
	for _, m := range in {
		if m.ID <= 0 {
			continue
		}
		out = append(out, c.convert(m))
	}
	return out
}

func (c *HTTPClient) convert(m apiMovie) Movie {
	movie := Movie{
		ID:          m.ID,
		Title:       strings.TrimSpace(m.Title),
		Overview:    m.Overview,
		ReleaseDate: ParseReleaseDate(m.ReleaseDate),
	}
	if m.VoteAverage != nil {
		movie.VoteAverage = *m.VoteAverage
	}
	if m.PosterPath != nil && *m.PosterPath != "" {
		movie.PosterPath = PosterURL(c.imageBase, *m.PosterPath)
	}
	return movie
}

// ParseReleaseDate parses a YYYY-MM-DD date. Empty or malformed input yields
// nil.
func ParseReleaseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}

// PosterURL joins the image base and a poster path.
func PosterURL(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
