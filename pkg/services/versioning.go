package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
	"github.com/ekaya-inc/ekaya-queries/pkg/repositories"
)

// BuildQueryVersion turns the changes of one save into a version record.
// It returns nil when no tracked field changed, which includes saves that only
// touched untracked fields such as status. The version takes its timestamp from
// q.UpdatedAt so history lines up exactly with the save that produced it.
func BuildQueryVersion(changes models.FieldChanges, q *models.Query) *models.QueryVersion {
	tracked := changes.Versioned()
	if len(tracked) == 0 {
		return nil
	}

	return &models.QueryVersion{
		ProjectID:        q.ProjectID,
		QueryID:          q.ID,
		VersionedChanges: tracked,
		EditorID:         q.EditorID,
		CreatedAt:        q.UpdatedAt,
	}
}

// VersionRecorder appends query versions after saves.
type VersionRecorder struct {
	enabled bool
	repo    repositories.QueryVersionRepository
	logger  *zap.Logger
}

// NewVersionRecorder creates a VersionRecorder. When enabled is false Record is
// a no-op and History still reads whatever was recorded earlier.
func NewVersionRecorder(enabled bool, repo repositories.QueryVersionRepository, logger *zap.Logger) *VersionRecorder {
	return &VersionRecorder{
		enabled: enabled,
		repo:    repo,
		logger:  logger.Named("query-versions"),
	}
}

// Enabled reports whether saves are being versioned.
func (r *VersionRecorder) Enabled() bool {
	return r.enabled
}

// Record writes a version for a save of q that produced changes. It must run
// inside the same transaction as the save. Storage failures are returned as
// *apperrors.VersionWriteError and are never swallowed.
func (r *VersionRecorder) Record(ctx context.Context, changes models.FieldChanges, q *models.Query) (*models.QueryVersion, error) {
	if !r.enabled {
		return nil, nil
	}

	version := BuildQueryVersion(changes, q)
	if version == nil {
		r.logger.Debug("No tracked fields changed, skipping version",
			zap.String("query_id", q.ID.String()),
		)
		return nil, nil
	}

	if err := r.repo.Create(ctx, version); err != nil {
		return nil, &apperrors.VersionWriteError{QueryID: q.ID, Err: err}
	}

	r.logger.Info("Recorded query version",
		zap.String("query_id", q.ID.String()),
		zap.String("version_id", version.ID.String()),
		zap.Int("fields", len(version.VersionedChanges)),
	)

	return version, nil
}

// History returns the versions of a query, newest first.
func (r *VersionRecorder) History(ctx context.Context, projectID, queryID uuid.UUID) ([]*models.QueryVersion, error) {
	versions, err := r.repo.ListByQuery(ctx, projectID, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list query versions: %w", err)
	}
	return versions, nil
}
