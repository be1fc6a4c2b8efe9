package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/catalog"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/tmdb"
	"github.com/Clark-Hu/cinerate/internal/validation"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// decodeValid decodes the body into dst and runs struct validation. It
// writes the error response itself and reports whether the handler may
// continue.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSONBody(w, r, dst); err != nil {
		s.respondDecodeError(w, r, err)
		return false
	}
	if err := validation.Struct(dst); err != nil {
		s.respondDomainError(w, r, err)
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload", nil)
	case errors.As(err, &typeError):
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field), nil)
	case errors.Is(err, io.EOF):
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty", nil)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown or read-only field "+field, nil)
	case errors.As(err, &maxBytes):
		s.respondError(w, r, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large", nil)
	default:
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body", nil)
	}
}

// respondDomainError maps a service error onto the HTTP error envelope.
// Unclassified errors are logged and reported as 500 without their text.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request payload", fields.Details())
		return
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	case domain.KindConflict:
		s.respondError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		return
	case domain.KindNotFound:
		s.respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	case domain.KindPermission:
		s.respondError(w, r, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	case errors.Is(err, catalog.ErrCatalogDisabled), errors.Is(err, tmdb.ErrUnavailable):
		s.respondError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", nil)
	default:
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
	}
}
