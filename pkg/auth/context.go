package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// UserFromContext builds the acting user from the JWT claims in ctx.
// It returns nil, the anonymous actor, when there are no claims or the
// subject is not a UUID. Unknown roles are dropped.
func UserFromContext(ctx context.Context) *models.User {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return nil
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}

	var roles []string
	for _, r := range claims.Roles {
		if models.IsValidRole(r) {
			roles = append(roles, r)
		}
	}

	return &models.User{UserID: userID, Roles: roles}
}

// GetProjectIDFromContext extracts the project ID from JWT claims in the context.
// Returns uuid.Nil if not authenticated or claims are missing.
func GetProjectIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil
	}
	projectID, err := claims.ProjectUUID()
	if err != nil {
		return uuid.Nil
	}
	return projectID
}

// RequireProjectIDFromContext extracts the project ID from context and returns an error if not found.
func RequireProjectIDFromContext(ctx context.Context) (uuid.UUID, error) {
	projectID := GetProjectIDFromContext(ctx)
	if projectID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("project ID not found in context")
	}
	return projectID, nil
}
