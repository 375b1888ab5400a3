package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/auth"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
	"github.com/ekaya-inc/ekaya-queries/pkg/services"
	sqlutil "github.com/ekaya-inc/ekaya-queries/pkg/sql"
)

// QueryResponse is the API representation of a saved query.
type QueryResponse struct {
	QueryID      string   `json:"query_id"`
	ProjectID    string   `json:"project_id"`
	Name         string   `json:"name"`
	FriendlyName string   `json:"friendly_name"`
	Slug         string   `json:"slug"`
	Description  *string  `json:"description,omitempty"`
	Statement    string   `json:"statement"`
	DataSource   string   `json:"data_source"`
	Status       *string  `json:"status,omitempty"`
	CreatorID    *string  `json:"creator_id,omitempty"`
	Locked       bool     `json:"locked"`
	Variables    []string `json:"variables"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// ListQueriesResponse wraps array for frontend compatibility.
type ListQueriesResponse struct {
	Queries []QueryResponse `json:"queries"`
}

// VersionResponse is one entry of a query's history.
type VersionResponse struct {
	VersionID string              `json:"version_id"`
	Changes   models.FieldChanges `json:"changes"`
	EditorID  *string             `json:"editor_id,omitempty"`
	CreatedAt string              `json:"created_at"`
}

// ListVersionsResponse wraps the history array.
type ListVersionsResponse struct {
	Versions []VersionResponse `json:"versions"`
}

// CheckBindValuesRequest for POST check body.
type CheckBindValuesRequest struct {
	Values map[string]any `json:"values"`
}

// QueriesHandler handles query-related HTTP requests.
type QueriesHandler struct {
	queryService services.QueryService
	logger       *zap.Logger
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(queryService services.QueryService, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{
		queryService: queryService,
		logger:       logger,
	}
}

// RegisterRoutes registers the queries handler's routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/queries"
	protect := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(next))
	}

	// CRUD endpoints
	mux.HandleFunc("GET "+base, protect(h.List))
	mux.HandleFunc("POST "+base, protect(h.Create))
	mux.HandleFunc("GET "+base+"/{qid}", protect(h.Get))
	mux.HandleFunc("PUT "+base+"/{qid}", protect(h.Update))
	mux.HandleFunc("DELETE "+base+"/{qid}", protect(h.Delete))

	// Template and governance endpoints
	mux.HandleFunc("GET "+base+"/{qid}/variables", protect(h.Variables))
	mux.HandleFunc("POST "+base+"/{qid}/check", protect(h.CheckBindValues))
	mux.HandleFunc("GET "+base+"/{qid}/permissions", protect(h.Permissions))
	mux.HandleFunc("GET "+base+"/{qid}/versions", protect(h.Versions))
}

// List handles GET /api/projects/{pid}/queries
// Optional filters: ?active=true&named=true&data_source=<name>
func (h *QueriesHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.parseProjectID(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	filter := models.QueryListFilter{
		ActiveOnly: parseBool(params.Get("active")),
		NamedOnly:  parseBool(params.Get("named")),
		DataSource: params.Get("data_source"),
	}

	queries, err := h.queryService.List(r.Context(), projectID, auth.UserFromContext(r.Context()), filter)
	if err != nil {
		h.writeServiceError(w, "list", err, zap.String("project_id", projectID.String()))
		return
	}

	data := ListQueriesResponse{
		Queries: make([]QueryResponse, len(queries)),
	}
	for i, q := range queries {
		data.Queries[i] = toQueryResponse(q)
	}

	h.writeData(w, http.StatusOK, data)
}

// Create handles POST /api/projects/{pid}/queries
func (h *QueriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.parseProjectID(w, r)
	if !ok {
		return
	}

	var req services.CreateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	query, err := h.queryService.Create(r.Context(), projectID, auth.UserFromContext(r.Context()), &req)
	if err != nil {
		h.writeServiceError(w, "create", err, zap.String("project_id", projectID.String()))
		return
	}

	h.writeData(w, http.StatusCreated, toQueryResponse(query))
}

// Get handles GET /api/projects/{pid}/queries/{qid}
func (h *QueriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	query, err := h.queryService.Get(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, "get", err, zap.String("query_id", queryID.String()))
		return
	}

	h.writeData(w, http.StatusOK, toQueryResponse(query))
}

// Update handles PUT /api/projects/{pid}/queries/{qid}
func (h *QueriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req services.UpdateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	query, err := h.queryService.Update(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()), &req)
	if err != nil {
		h.writeServiceError(w, "update", err, zap.String("query_id", queryID.String()))
		return
	}

	h.writeData(w, http.StatusOK, toQueryResponse(query))
}

// Delete handles DELETE /api/projects/{pid}/queries/{qid}
func (h *QueriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	if err := h.queryService.Delete(r.Context(), projectID, queryID, auth.UserFromContext(r.Context())); err != nil {
		h.writeServiceError(w, "delete", err, zap.String("query_id", queryID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Variables handles GET /api/projects/{pid}/queries/{qid}/variables
func (h *QueriesHandler) Variables(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	vars, err := h.queryService.Variables(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, "read variables of", err, zap.String("query_id", queryID.String()))
		return
	}
	if vars == nil {
		vars = []models.QueryVariable{}
	}

	h.writeData(w, http.StatusOK, map[string]any{"variables": vars})
}

// CheckBindValues handles POST /api/projects/{pid}/queries/{qid}/check
func (h *QueriesHandler) CheckBindValues(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req CheckBindValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	err := h.queryService.CheckBindValues(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()), req.Values)
	if err != nil {
		h.writeServiceError(w, "check values of", err, zap.String("query_id", queryID.String()))
		return
	}

	h.writeData(w, http.StatusOK, map[string]bool{"valid": true})
}

// Permissions handles GET /api/projects/{pid}/queries/{qid}/permissions
func (h *QueriesHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	perms, err := h.queryService.Permissions(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, "evaluate permissions of", err, zap.String("query_id", queryID.String()))
		return
	}

	h.writeData(w, http.StatusOK, perms)
}

// Versions handles GET /api/projects/{pid}/queries/{qid}/versions
func (h *QueriesHandler) Versions(w http.ResponseWriter, r *http.Request) {
	projectID, queryID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	versions, err := h.queryService.History(r.Context(), projectID, queryID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, "list versions of", err, zap.String("query_id", queryID.String()))
		return
	}

	data := ListVersionsResponse{Versions: make([]VersionResponse, len(versions))}
	for i, v := range versions {
		data.Versions[i] = VersionResponse{
			VersionID: v.ID.String(),
			Changes:   v.VersionedChanges,
			EditorID:  uuidString(v.EditorID),
			CreatedAt: v.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	h.writeData(w, http.StatusOK, data)
}

// writeServiceError maps service errors onto HTTP statuses. Only unexpected
// failures are logged at ERROR.
func (h *QueriesHandler) writeServiceError(w http.ResponseWriter, action string, err error, fields ...zap.Field) {
	var validationErr *apperrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Query not found")
	case errors.Is(err, apperrors.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden", "Not allowed to "+action+" this query")
	case errors.Is(err, apperrors.ErrConflict):
		h.writeError(w, http.StatusConflict, "conflict", "Query was modified concurrently")
	default:
		h.logger.Error("Failed to "+action+" query", append(fields, zap.Error(err))...)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action+" query")
	}
}

func (h *QueriesHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *QueriesHandler) writeData(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *QueriesHandler) parseProjectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
		return uuid.Nil, false
	}
	return projectID, true
}

func (h *QueriesHandler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := h.parseProjectID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	queryID, err := uuid.Parse(r.PathValue("qid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_query_id", "Invalid query ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, queryID, true
}

func toQueryResponse(q *models.Query) QueryResponse {
	vars := sqlutil.ExtractVariables(q.Statement)
	if vars == nil {
		vars = []string{}
	}

	return QueryResponse{
		QueryID:      q.ID.String(),
		ProjectID:    q.ProjectID.String(),
		Name:         q.Name,
		FriendlyName: q.FriendlyName(),
		Slug:         q.Slug(),
		Description:  q.Description,
		Statement:    q.Statement,
		DataSource:   q.DataSource,
		Status:       q.Status,
		CreatorID:    uuidString(q.CreatorID),
		Locked:       q.IsLocked(),
		Variables:    vars,
		CreatedAt:    q.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    q.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
