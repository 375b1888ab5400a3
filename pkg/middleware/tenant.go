package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-queries/pkg/auth"
)

// TenantScoper opens a project-scoped database context.
// database.TenantScopeProvider implements it.
type TenantScoper interface {
	WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error)
}

// WithTenantContext creates middleware that sets up a tenant-scoped DB
// connection for the project in the JWT claims. It runs after the auth
// middleware. The connection is released when the handler returns.
func WithTenantContext(scoper TenantScoper, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			projectID, err := auth.RequireProjectIDFromContext(r.Context())
			if err != nil {
				logger.Error("Missing project context in claims", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal_error", "Missing project context")
				return
			}

			ctx, cleanup, err := scoper.WithTenantScope(r.Context(), projectID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer cleanup()

			next(w, r.WithContext(ctx))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
