package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/database"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// QueryRepository provides data access for saved queries.
type QueryRepository interface {
	// CRUD operations
	Create(ctx context.Context, query *models.Query) error
	GetByID(ctx context.Context, projectID, queryID uuid.UUID) (*models.Query, error)
	List(ctx context.Context, projectID uuid.UUID, filter models.QueryListFilter) ([]*models.Query, error)
	Update(ctx context.Context, query *models.Query) error
	SoftDelete(ctx context.Context, projectID, queryID uuid.UUID) error

	// HasStatusColumn reports whether engine_queries carries the optional
	// status column. The answer is looked up once and cached.
	HasStatusColumn(ctx context.Context) (bool, error)
}

type queryRepository struct {
	mu        sync.Mutex
	hasStatus *bool
}

// NewQueryRepository creates a new QueryRepository.
func NewQueryRepository() QueryRepository {
	return &queryRepository{}
}

var _ QueryRepository = (*queryRepository)(nil)

// Timestamps are truncated to the database's microsecond precision so the
// in-memory values match what a later read returns.
const queryBaseColumns = `id, project_id, name, description, statement, data_source, creator_id, created_at, updated_at`

func (r *queryRepository) HasStatusColumn(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasStatus != nil {
		return *r.hasStatus, nil
	}

	db, err := database.GetQuerier(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'engine_queries' AND column_name = 'status'
		)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to inspect engine_queries columns: %w", err)
	}

	r.hasStatus = &exists
	return exists, nil
}

func (r *queryRepository) Create(ctx context.Context, query *models.Query) error {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}
	hasStatus, err := r.HasStatusColumn(ctx)
	if err != nil {
		return err
	}

	now := time.Now().Truncate(time.Microsecond)
	query.ID = uuid.New()
	query.CreatedAt = now
	query.UpdatedAt = now

	args := []any{
		query.ID, query.ProjectID, query.Name, query.Description, query.Statement,
		query.DataSource, query.CreatorID, query.CreatedAt, query.UpdatedAt,
	}
	columns := queryBaseColumns
	if hasStatus {
		columns += ", status"
		args = append(args, query.Status)
	}

	sql := fmt.Sprintf(`INSERT INTO engine_queries (%s) VALUES (%s)`, columns, placeholders(len(args)))

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}

	return nil
}

func (r *queryRepository) GetByID(ctx context.Context, projectID, queryID uuid.UUID) (*models.Query, error) {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}
	hasStatus, err := r.HasStatusColumn(ctx)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM engine_queries
		WHERE project_id = $1 AND id = $2 AND deleted_at IS NULL`, selectColumns(hasStatus))

	q, err := scanQuery(db.QueryRow(ctx, sql, projectID, queryID), hasStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("query %s: %w", queryID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get query: %w", err)
	}

	return q, nil
}

// List returns the project's queries, newest first. ActiveOnly is ignored
// when the schema has no status column, so every query counts as active.
func (r *queryRepository) List(ctx context.Context, projectID uuid.UUID, filter models.QueryListFilter) ([]*models.Query, error) {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}
	hasStatus, err := r.HasStatusColumn(ctx)
	if err != nil {
		return nil, err
	}

	conditions := []string{"project_id = $1", "deleted_at IS NULL"}
	args := []any{projectID}

	if filter.ActiveOnly && hasStatus {
		args = append(args, models.QueryStatusActive)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.NamedOnly {
		conditions = append(conditions, "name <> ''")
	}
	if filter.DataSource != "" {
		args = append(args, filter.DataSource)
		conditions = append(conditions, fmt.Sprintf("data_source = $%d", len(args)))
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM engine_queries
		WHERE %s
		ORDER BY created_at DESC`, selectColumns(hasStatus), strings.Join(conditions, " AND "))

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	queries := make([]*models.Query, 0)
	for rows.Next() {
		q, err := scanQuery(rows, hasStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queries: %w", err)
	}

	return queries, nil
}

// Update persists the mutable fields and stamps UpdatedAt. The new UpdatedAt
// is written back to query so callers can copy it into a version record.
func (r *queryRepository) Update(ctx context.Context, query *models.Query) error {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}
	hasStatus, err := r.HasStatusColumn(ctx)
	if err != nil {
		return err
	}

	updatedAt := time.Now().Truncate(time.Microsecond)

	args := []any{
		query.ProjectID, query.ID,
		query.Name, query.Description, query.Statement, query.DataSource,
		updatedAt,
	}
	set := `name = $3, description = $4, statement = $5, data_source = $6, updated_at = $7`
	if hasStatus {
		args = append(args, query.Status)
		set += ", status = $8"
	}

	sql := fmt.Sprintf(`
		UPDATE engine_queries
		SET %s
		WHERE project_id = $1 AND id = $2 AND deleted_at IS NULL`, set)

	result, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update query: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("query %s: %w", query.ID, apperrors.ErrNotFound)
	}

	query.UpdatedAt = updatedAt
	return nil
}

func (r *queryRepository) SoftDelete(ctx context.Context, projectID, queryID uuid.UUID) error {
	db, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	sql := `
		UPDATE engine_queries
		SET deleted_at = NOW()
		WHERE project_id = $1 AND id = $2 AND deleted_at IS NULL`

	result, err := db.Exec(ctx, sql, projectID, queryID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete query: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("query %s: %w", queryID, apperrors.ErrNotFound)
	}

	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func selectColumns(hasStatus bool) string {
	if hasStatus {
		return queryBaseColumns + ", status"
	}
	return queryBaseColumns
}

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ", ")
}

// scanQuery reads one row selected with selectColumns(hasStatus).
// pgx.Rows satisfies pgx.Row, so this serves both single-row and list reads.
func scanQuery(row pgx.Row, hasStatus bool) (*models.Query, error) {
	var q models.Query
	dest := []any{
		&q.ID, &q.ProjectID, &q.Name, &q.Description, &q.Statement,
		&q.DataSource, &q.CreatorID, &q.CreatedAt, &q.UpdatedAt,
	}
	if hasStatus {
		dest = append(dest, &q.Status)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &q, nil
}
