package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBindValue(t *testing.T) {
	tests := []struct {
		name            string
		variable        string
		value           any
		expectInjection bool
	}{
		// Clean values
		{name: "clean string value", variable: "customer_id", value: "12345"},
		{name: "clean email address", variable: "email", value: "user@example.com"},
		{name: "clean date string", variable: "start_date", value: "2024-01-15"},
		{name: "clean UUID", variable: "id", value: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "clean search term", variable: "search", value: "laptop computers"},
		{name: "empty string", variable: "filter", value: ""},

		// Non-string values can't carry injection
		{name: "integer value", variable: "limit", value: 100},
		{name: "float value", variable: "price", value: 99.95},
		{name: "boolean value", variable: "is_active", value: true},
		{name: "nil value", variable: "optional", value: nil},

		// Classic injection patterns
		{name: "classic quote injection", variable: "username", value: "' OR '1'='1", expectInjection: true},
		{name: "drop table injection", variable: "search", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select injection", variable: "id", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "OR injection", variable: "password", value: "' OR 1=1--", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckBindValue(tt.variable, tt.value)

			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.True(t, result.IsSQLi)
			assert.NotEmpty(t, result.Fingerprint)
			assert.Equal(t, tt.variable, result.VariableName)
			assert.Equal(t, tt.value, result.Value)
		})
	}
}

func TestCheckBindValues(t *testing.T) {
	results := CheckBindValues(map[string]any{
		"customer_id": "12345",
		"search":      "'; DROP TABLE users--",
		"limit":       100,
		"name":        "' OR '1'='1",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "name", results[0].VariableName)
	assert.Equal(t, "search", results[1].VariableName)
}

func TestCheckBindValues_AllClean(t *testing.T) {
	assert.Nil(t, CheckBindValues(map[string]any{"a": "x", "b": 2}))
	assert.Nil(t, CheckBindValues(nil))
}
