package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/database"
	"github.com/ekaya-inc/ekaya-queries/pkg/logging"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
	"github.com/ekaya-inc/ekaya-queries/pkg/policy"
	"github.com/ekaya-inc/ekaya-queries/pkg/repositories"
	sqlutil "github.com/ekaya-inc/ekaya-queries/pkg/sql"
)

// QueryService orchestrates saved query management under the governance rules:
// every read is filtered by the view policy, every mutation by the edit policy,
// and every save of a tracked field leaves a version behind.
type QueryService interface {
	// CRUD Operations
	Create(ctx context.Context, projectID uuid.UUID, user *models.User, req *CreateQueryRequest) (*models.Query, error)
	Get(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) (*models.Query, error)
	List(ctx context.Context, projectID uuid.UUID, user *models.User, filter models.QueryListFilter) ([]*models.Query, error)
	Update(ctx context.Context, projectID, queryID uuid.UUID, user *models.User, req *UpdateQueryRequest) (*models.Query, error)
	Delete(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) error

	// Template inspection
	Variables(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) ([]models.QueryVariable, error)
	CheckBindValues(ctx context.Context, projectID, queryID uuid.UUID, user *models.User, values map[string]any) error

	// Governance
	Permissions(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) (policy.Permissions, error)
	History(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) ([]*models.QueryVersion, error)
}

// CreateQueryRequest contains fields for creating a new query.
type CreateQueryRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Statement   string  `json:"statement"`
	DataSource  string  `json:"data_source"`
	Status      *string `json:"status,omitempty"`
}

// UpdateQueryRequest contains fields for updating a query.
// All fields are optional - only non-nil values are updated.
type UpdateQueryRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Statement   *string `json:"statement,omitempty"`
	DataSource  *string `json:"data_source,omitempty"`
	Status      *string `json:"status,omitempty"`
}

type queryService struct {
	queryRepo repositories.QueryRepository
	versions  *VersionRecorder
	evaluator *policy.Evaluator
	tx        database.Transactor
	logger    *zap.Logger
}

// NewQueryService creates a new query service with dependencies.
func NewQueryService(
	queryRepo repositories.QueryRepository,
	versions *VersionRecorder,
	evaluator *policy.Evaluator,
	tx database.Transactor,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		queryRepo: queryRepo,
		versions:  versions,
		evaluator: evaluator,
		tx:        tx,
		logger:    logger.Named("queries"),
	}
}

var _ QueryService = (*queryService)(nil)

// Create creates a new saved query owned by user.
func (s *queryService) Create(ctx context.Context, projectID uuid.UUID, user *models.User, req *CreateQueryRequest) (*models.Query, error) {
	query := &models.Query{
		ProjectID:   projectID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Statement:   req.Statement,
		DataSource:  req.DataSource,
		Status:      req.Status,
	}
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	// An unsaved query passes the ownership rule, but the injected policies
	// still decide whether this user may create queries at all.
	if err := s.requireEditable(ctx, query, user); err != nil {
		return nil, err
	}

	if id := user.ID(); id != uuid.Nil {
		query.CreatorID = &id
		query.EditorID = &id
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.queryRepo.Create(ctx, query); err != nil {
			return fmt.Errorf("failed to create query: %w", err)
		}
		_, err := s.versions.Record(ctx, models.DiffQuery(nil, query), query)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.warnQuotedVariables(query)
	s.logger.Info("Created query",
		zap.String("id", query.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("data_source", query.DataSource),
		logging.Statement(query.Statement),
	)

	return query, nil
}

// Get retrieves a query the user may view.
func (s *queryService) Get(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) (*models.Query, error) {
	query, err := s.queryRepo.GetByID(ctx, projectID, queryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewable(ctx, query, user); err != nil {
		return nil, err
	}
	return query, nil
}

// List retrieves the queries matching filter that the user may view.
func (s *queryService) List(ctx context.Context, projectID uuid.UUID, user *models.User, filter models.QueryListFilter) ([]*models.Query, error) {
	queries, err := s.queryRepo.List(ctx, projectID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}

	visible := make([]*models.Query, 0, len(queries))
	for _, q := range queries {
		ok, err := s.evaluator.Viewable(ctx, q, user)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, q)
		}
	}
	return visible, nil
}

// Update applies req to an existing query. The row update and the version
// append commit together; if either fails neither is kept.
func (s *queryService) Update(ctx context.Context, projectID, queryID uuid.UUID, user *models.User, req *UpdateQueryRequest) (*models.Query, error) {
	existing, err := s.queryRepo.GetByID(ctx, projectID, queryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditable(ctx, existing, user); err != nil {
		return nil, err
	}

	query := existing.Clone()
	applyUpdate(query, req)
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	changes := models.DiffQuery(existing, query)
	if len(changes) == 0 {
		return existing, nil
	}

	if id := user.ID(); id != uuid.Nil {
		query.EditorID = &id
	} else {
		query.EditorID = nil
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.queryRepo.Update(ctx, query); err != nil {
			return fmt.Errorf("failed to update query: %w", err)
		}
		_, err := s.versions.Record(ctx, changes, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, ok := changes[models.FieldStatement]; ok {
		s.warnQuotedVariables(query)
	}
	s.logger.Info("Updated query",
		zap.String("id", queryID.String()),
		zap.String("project_id", projectID.String()),
		zap.Strings("fields", changedFields(changes)),
	)

	return query, nil
}

// Delete soft-deletes a query the user may edit.
func (s *queryService) Delete(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) error {
	query, err := s.queryRepo.GetByID(ctx, projectID, queryID)
	if err != nil {
		return err
	}
	if err := s.requireEditable(ctx, query, user); err != nil {
		return err
	}

	if err := s.queryRepo.SoftDelete(ctx, projectID, queryID); err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}

	s.logger.Info("Deleted query",
		zap.String("id", queryID.String()),
		zap.String("project_id", projectID.String()),
	)

	return nil
}

// Variables returns the template variables of a viewable query.
func (s *queryService) Variables(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) ([]models.QueryVariable, error) {
	query, err := s.Get(ctx, projectID, queryID, user)
	if err != nil {
		return nil, err
	}
	return sqlutil.ParseVariables(query.Statement), nil
}

// CheckBindValues screens values a caller intends to bind to a query's
// variables. It rejects missing variables and values that look like SQL
// injection; the statement itself is never executed here.
func (s *queryService) CheckBindValues(ctx context.Context, projectID, queryID uuid.UUID, user *models.User, values map[string]any) error {
	query, err := s.Get(ctx, projectID, queryID, user)
	if err != nil {
		return err
	}

	if missing := sqlutil.MissingBindValues(query.Statement, values); len(missing) > 0 {
		return apperrors.NewValidationError("values", fmt.Sprintf("missing values for: %s", strings.Join(missing, ", ")))
	}

	if results := sqlutil.CheckBindValues(values); len(results) > 0 {
		names := make([]string, len(results))
		for i, r := range results {
			names[i] = r.VariableName
			s.logger.Warn("Rejected bind value",
				zap.String("query_id", queryID.String()),
				zap.String("variable", r.VariableName),
				zap.String("fingerprint", r.Fingerprint),
				zap.String("value", logging.RedactBindValue(r.Value)),
			)
		}
		return apperrors.NewValidationError("values", fmt.Sprintf("potential SQL injection in: %s", strings.Join(names, ", ")))
	}

	return nil
}

// Permissions evaluates what the user may do with a query.
func (s *queryService) Permissions(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) (policy.Permissions, error) {
	query, err := s.queryRepo.GetByID(ctx, projectID, queryID)
	if err != nil {
		return policy.Permissions{}, err
	}
	return s.evaluator.Permissions(ctx, query, user)
}

// History returns the version history of a viewable query, newest first.
func (s *queryService) History(ctx context.Context, projectID, queryID uuid.UUID, user *models.User) ([]*models.QueryVersion, error) {
	if _, err := s.Get(ctx, projectID, queryID, user); err != nil {
		return nil, err
	}
	return s.versions.History(ctx, projectID, queryID)
}

func (s *queryService) requireViewable(ctx context.Context, query *models.Query, user *models.User) error {
	ok, err := s.evaluator.Viewable(ctx, query, user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("query %s is not viewable: %w", query.ID, apperrors.ErrForbidden)
	}
	return nil
}

func (s *queryService) requireEditable(ctx context.Context, query *models.Query, user *models.User) error {
	ok, err := s.evaluator.Editable(ctx, query, user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("query %s is not editable: %w", query.ID, apperrors.ErrForbidden)
	}
	return nil
}

// warnQuotedVariables logs markers placed inside string literals. They are
// legal but almost always a mistake, since the bound value is quoted again.
func (s *queryService) warnQuotedVariables(query *models.Query) {
	if quoted := sqlutil.FindVariablesInStringLiterals(query.Statement); len(quoted) > 0 {
		s.logger.Warn("Template variables inside string literals",
			zap.String("id", query.ID.String()),
			zap.Strings("variables", quoted),
		)
	}
}

func validateQuery(query *models.Query) error {
	if err := query.Validate(); err != nil {
		return apperrors.NewValidationError(models.FieldStatement, err.Error())
	}
	return nil
}

func applyUpdate(query *models.Query, req *UpdateQueryRequest) {
	if req.Name != nil {
		query.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		if *req.Description == "" {
			query.Description = nil
		} else {
			query.Description = req.Description
		}
	}
	if req.Statement != nil {
		query.Statement = *req.Statement
	}
	if req.DataSource != nil {
		query.DataSource = *req.DataSource
	}
	if req.Status != nil {
		query.Status = req.Status
	}
}

func changedFields(changes models.FieldChanges) []string {
	fields := make([]string, 0, len(changes))
	for _, f := range []string{models.FieldName, models.FieldDescription, models.FieldStatement, models.FieldDataSource, models.FieldStatus} {
		if _, ok := changes[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}
