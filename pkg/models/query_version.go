package models

import (
	"time"

	"github.com/google/uuid"
)

// Field names used as keys in FieldChanges and QueryVersion.VersionedChanges.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldStatement   = "statement"
	FieldDataSource  = "data_source"
	FieldStatus      = "status"
)

// VersionedFields are the fields whose changes produce a version record.
var VersionedFields = []string{FieldName, FieldDescription, FieldStatement, FieldDataSource}

// IsVersionedField reports whether field is tracked by version history.
func IsVersionedField(field string) bool {
	for _, f := range VersionedFields {
		if f == field {
			return true
		}
	}
	return false
}

// FieldChange holds the before and after values of one field.
// Optional fields use nil for "absent".
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// FieldChanges maps a field name to its change.
type FieldChanges map[string]FieldChange

// Versioned returns only the tracked entries of c.
func (c FieldChanges) Versioned() FieldChanges {
	out := make(FieldChanges)
	for field, change := range c {
		if IsVersionedField(field) {
			out[field] = change
		}
	}
	return out
}

// QueryVersion is an immutable record of a change to a query's tracked fields.
// Stored in engine_query_versions.
type QueryVersion struct {
	ID               uuid.UUID    `json:"id"`
	ProjectID        uuid.UUID    `json:"project_id"`
	QueryID          uuid.UUID    `json:"query_id"`
	VersionedChanges FieldChanges `json:"versioned_changes"`
	EditorID         *uuid.UUID   `json:"editor_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"` // the query's UpdatedAt for the save that produced it
}

// DiffQuery returns the persisted fields that differ between before and after.
// A nil before is treated as an empty, unsaved query, so every non-empty field
// of after is reported.
func DiffQuery(before, after *Query) FieldChanges {
	if before == nil {
		before = &Query{}
	}
	changes := make(FieldChanges)
	if before.Name != after.Name {
		changes[FieldName] = FieldChange{Before: before.Name, After: after.Name}
	}
	if !equalOptional(before.Description, after.Description) {
		changes[FieldDescription] = FieldChange{Before: optionalValue(before.Description), After: optionalValue(after.Description)}
	}
	if before.Statement != after.Statement {
		changes[FieldStatement] = FieldChange{Before: before.Statement, After: after.Statement}
	}
	if before.DataSource != after.DataSource {
		changes[FieldDataSource] = FieldChange{Before: before.DataSource, After: after.DataSource}
	}
	if !equalOptional(before.Status, after.Status) {
		changes[FieldStatus] = FieldChange{Before: optionalValue(before.Status), After: optionalValue(after.Status)}
	}
	return changes
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func optionalValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
