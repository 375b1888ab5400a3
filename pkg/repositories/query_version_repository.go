package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-queries/pkg/database"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// QueryVersionRepository provides append-only access to query version history.
// Versions are never updated or deleted.
type QueryVersionRepository interface {
	// Create appends a version. CreatedAt is stored as given.
	Create(ctx context.Context, version *models.QueryVersion) error

	// ListByQuery returns the versions of a query, newest first.
	ListByQuery(ctx context.Context, projectID, queryID uuid.UUID) ([]*models.QueryVersion, error)
}

type queryVersionRepository struct{}

// NewQueryVersionRepository creates a new QueryVersionRepository.
func NewQueryVersionRepository() QueryVersionRepository {
	return &queryVersionRepository{}
}

var _ QueryVersionRepository = (*queryVersionRepository)(nil)

func (r *queryVersionRepository) Create(ctx context.Context, version *models.QueryVersion) error {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}

	changesJSON, err := json.Marshal(version.VersionedChanges)
	if err != nil {
		return fmt.Errorf("failed to marshal versioned_changes: %w", err)
	}

	sql := `
		INSERT INTO engine_query_versions (
			id, project_id, query_id, versioned_changes, editor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = db.Exec(ctx, sql,
		version.ID,
		version.ProjectID,
		version.QueryID,
		changesJSON,
		version.EditorID,
		version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create query version: %w", err)
	}

	return nil
}

func (r *queryVersionRepository) ListByQuery(ctx context.Context, projectID, queryID uuid.UUID) ([]*models.QueryVersion, error) {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	sql := `
		SELECT id, project_id, query_id, versioned_changes, editor_id, created_at
		FROM engine_query_versions
		WHERE project_id = $1 AND query_id = $2
		ORDER BY created_at DESC, id`

	rows, err := db.Query(ctx, sql, projectID, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.QueryVersion, 0)
	for rows.Next() {
		v, err := scanQueryVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query versions: %w", err)
	}

	return versions, nil
}

func scanQueryVersion(rows pgx.Rows) (*models.QueryVersion, error) {
	var v models.QueryVersion
	var changesJSON []byte

	err := rows.Scan(&v.ID, &v.ProjectID, &v.QueryID, &changesJSON, &v.EditorID, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan query version: %w", err)
	}

	if err := json.Unmarshal(changesJSON, &v.VersionedChanges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal versioned_changes: %w", err)
	}

	return &v, nil
}
