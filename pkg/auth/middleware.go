package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingProjectID     = errors.New("missing project ID in token")
	ErrProjectIDMismatch    = errors.New("project ID mismatch between token and URL")
)

// Middleware provides HTTP authentication middleware.
type Middleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuthWithPathValidation validates the bearer token and matches the
// URL project ID to the token's project claim. pathParamName is the name used
// in r.PathValue() (e.g., "pid").
func (m *Middleware) RequireAuthWithPathValidation(pathParamName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := m.validateRequest(r)
			if err != nil {
				m.logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			projectID, err := claims.ProjectUUID()
			if err != nil {
				writeAuthError(w, http.StatusBadRequest, "bad_request", "Missing project ID in token")
				return
			}

			if projectID.String() != strings.ToLower(r.PathValue(pathParamName)) {
				m.logger.Warn("Project ID mismatch",
					zap.String("token_project_id", claims.ProjectID),
					zap.String("path", r.URL.Path))
				writeAuthError(w, http.StatusForbidden, "forbidden", ErrProjectIDMismatch.Error())
				return
			}

			next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
		}
	}
}

func (m *Middleware) validateRequest(r *http.Request) (*Claims, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "", ErrMissingAuthorization
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, "", ErrInvalidAuthFormat
	}

	claims, err := m.validator.ValidateToken(token)
	if err != nil {
		return nil, "", err
	}
	return claims, token, nil
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
