package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantScope is a pooled connection held for one unit of work.
// When ProjectID is set the connection carries app.current_project_id, which
// the row-level security policies on engine_queries and engine_query_versions
// filter on.
type TenantScope struct {
	Conn      *pgxpool.Conn
	ProjectID *uuid.UUID
}

// Close releases the connection. A project-bound connection is reset first
// so the setting cannot leak into whoever acquires it next.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	if s.ProjectID != nil {
		_, _ = s.Conn.Exec(context.Background(), "RESET app.current_project_id")
	}
	s.Conn.Release()
	s.Conn = nil
}

// WithTenant acquires a connection bound to projectID.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, projectID uuid.UUID) (*TenantScope, error) {
	return db.acquire(ctx, &projectID)
}

// WithoutTenant acquires a connection with no project bound, for startup
// checks that only read the catalog.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	return db.acquire(ctx, nil)
}

func (db *DB) acquire(ctx context.Context, projectID *uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if projectID == nil {
		return &TenantScope{Conn: conn}, nil
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_project_id', $1, false)", projectID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to set tenant context: %w", err)
	}
	return &TenantScope{Conn: conn, ProjectID: projectID}, nil
}

// TenantScopeProvider creates tenant-scoped contexts for request handlers.
type TenantScopeProvider struct {
	db *DB
}

// NewTenantScopeProvider creates a TenantScopeProvider for the given database.
func NewTenantScopeProvider(db *DB) *TenantScopeProvider {
	return &TenantScopeProvider{db: db}
}

// WithTenantScope returns ctx carrying a connection bound to projectID.
// The cleanup function must be called when the request is done.
func (p *TenantScopeProvider) WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
	scope, err := p.db.WithTenant(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return SetTenantScope(ctx, scope), scope.Close, nil
}
