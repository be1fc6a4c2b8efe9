package httpserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

const dateLayout = "2006-01-02"

// pathID reads a positive integer route parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

func buildMovieFilters(query url.Values) (repository.MovieListFilters, error) {
	var filters repository.MovieListFilters

	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil || page < 1 {
			return filters, domain.Validationf("invalid page value")
		}
		filters.Page = page
	}
	if val := strings.TrimSpace(query.Get("page_size")); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil || size < 1 {
			return filters, domain.Validationf("invalid page_size value")
		}
		if size > repository.MaxPageSize {
			size = repository.MaxPageSize
		}
		filters.PageSize = size
	}
	return filters, nil
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	val := strings.TrimSpace(*raw)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return nil, domain.Validationf("release_date must be formatted as YYYY-MM-DD")
	}
	return &t, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
