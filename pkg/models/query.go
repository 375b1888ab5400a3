package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Name sentinels. A query whose name starts with one of these is locked:
// only its creator may edit it.
const (
	SentinelSystem = '#'
	SentinelLocked = '*'
)

// ErrStatementRequired is returned by Query.Validate when the statement is blank.
var ErrStatementRequired = errors.New("statement is required")

// QueryStatusActive is the status value matched by the active-queries filter.
const QueryStatusActive = "active"

// Query represents a saved SQL query.
type Query struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Statement   string     `json:"statement"`
	DataSource  string     `json:"data_source"`
	Status      *string    `json:"status,omitempty"` // nil when unset or when the schema has no status column
	CreatorID   *uuid.UUID `json:"creator_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// EditorID identifies who is performing the current mutation. It is never
	// persisted on the query row; the version recorder copies it into the
	// version it writes.
	EditorID *uuid.UUID `json:"-"`
}

// IsPersisted reports whether the query has been assigned an ID by storage.
func (q *Query) IsPersisted() bool {
	return q.ID != uuid.Nil
}

// IsLocked reports whether the name carries a sentinel prefix.
// Recomputed from Name on every call; there is no stored lock state.
func (q *Query) IsLocked() bool {
	return q.Name != "" && (q.Name[0] == SentinelSystem || q.Name[0] == SentinelLocked)
}

// IsCreatedBy reports whether userID is the recorded creator.
func (q *Query) IsCreatedBy(userID uuid.UUID) bool {
	return q.CreatorID != nil && userID != uuid.Nil && *q.CreatorID == userID
}

var (
	nameTagPattern  = regexp.MustCompile(`\[.+\]`)
	slugJunkPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// FriendlyName returns the name for display: one leading sentinel is dropped,
// bracketed tags are removed and surrounding whitespace is trimmed.
func (q *Query) FriendlyName() string {
	name := q.Name
	if q.IsLocked() {
		name = name[1:]
	}
	return strings.TrimSpace(nameTagPattern.ReplaceAllString(name, ""))
}

// Slug returns the URL parameter for the query, e.g. "<id>-monthly-revenue".
func (q *Query) Slug() string {
	var parts []string
	if q.IsPersisted() {
		parts = append(parts, q.ID.String())
	}
	if q.Name != "" {
		parts = append(parts, q.Name)
	}
	s := strings.ReplaceAll(strings.Join(parts, "-"), "'", "")
	s = slugJunkPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// Validate checks the invariants a query must satisfy before it is saved.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Statement) == "" {
		return ErrStatementRequired
	}
	return nil
}

// Clone returns a copy that shares no pointers with q.
func (q *Query) Clone() *Query {
	c := *q
	c.Description = cloneString(q.Description)
	c.Status = cloneString(q.Status)
	c.CreatorID = cloneUUID(q.CreatorID)
	c.EditorID = cloneUUID(q.EditorID)
	return &c
}

// QueryVariable is a template variable referenced by a statement.
type QueryVariable struct {
	Name       string   `json:"name"`
	Qualifiers []string `json:"qualifiers,omitempty"` // e.g. a type hint; taken from the first occurrence
}

// QueryListFilter narrows QueryRepository.List.
type QueryListFilter struct {
	ActiveOnly bool   // status = 'active'; ignored when the schema has no status column
	NamedOnly  bool   // name <> ''
	DataSource string // empty matches all
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
