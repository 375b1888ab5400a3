package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		expected  []string
	}{
		{
			name:      "no variables",
			statement: "no variables here",
			expected:  nil,
		},
		{
			name:      "date range",
			statement: "select * from t where d between {{start_date}} and {{end_date}}",
			expected:  []string{"start_date", "end_date"},
		},
		{
			name:      "duplicates collapse to first occurrence",
			statement: "{{a}} {{a}} {{b}}",
			expected:  []string{"a", "b"},
		},
		{
			name:      "variable used three times",
			statement: "SELECT * FROM logs WHERE user_id = {{user_id}} OR created_by = {{user_id}} OR modified_by = {{user_id}}",
			expected:  []string{"user_id"},
		},
		{
			name:      "order follows first appearance",
			statement: "SELECT {{b}}, {{a}}, {{b}}, {{c}}",
			expected:  []string{"b", "a", "c"},
		},
		{
			name:      "mixed case names are distinct",
			statement: "WHERE userId = {{userId}} AND userid = {{userid}}",
			expected:  []string{"userId", "userid"},
		},
		{
			name:      "leading underscore",
			statement: "SELECT * FROM temp WHERE value = {{_private}}",
			expected:  []string{"_private"},
		},
		{
			name:      "pipe qualifier stripped",
			statement: "WHERE created_at > {{since | date}}",
			expected:  []string{"since"},
		},
		{
			name:      "colon qualifier stripped",
			statement: "LIMIT {{limit:integer}}",
			expected:  []string{"limit"},
		},
		{
			name:      "qualified and bare occurrences dedupe",
			statement: "WHERE a = {{x | int}} OR b = {{x}}",
			expected:  []string{"x"},
		},
		{
			name:      "whitespace inside braces",
			statement: "WHERE a = {{ region }}",
			expected:  []string{"region"},
		},
		{
			name:      "variable in subquery",
			statement: "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers WHERE status = {{status}})",
			expected:  []string{"status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVariables(tt.statement))
		})
	}
}

func TestExtractVariables_MalformedMarkers(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		expected  []string
	}{
		{"empty string", "", nil},
		{"only whitespace", "   \n\t  ", nil},
		{"single braces", "SELECT * FROM users WHERE id = {user_id}", nil},
		{"starts with number", "WHERE id = {{123abc}}", nil},
		{"contains hyphen", "WHERE id = {{user-id}}", nil},
		{"empty marker", "WHERE id = {{}}", nil},
		{"unclosed marker", "WHERE id = {{user_id", nil},
		{"lone braces are inert", "SELECT '{' || x || '}' FROM t WHERE y = {{y}}", []string{"y"}},
		{"brace inside marker", "WHERE a = {{a{b}}", nil},
		{"triple braces still yield inner marker", "WHERE a = {{{a}}}", []string{"a"}},
		{"two words", "WHERE a = {{first second}}", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVariables(tt.statement))
		})
	}
}

func TestExtractVariables_Deterministic(t *testing.T) {
	statement := "SELECT * FROM t WHERE a = {{a}} AND b = {{b | text}} AND c = {{a}}"

	first := ExtractVariables(statement)
	second := ExtractVariables(statement)

	assert.Equal(t, first, second)
	// Extraction never mutates its input.
	assert.Equal(t, "SELECT * FROM t WHERE a = {{a}} AND b = {{b | text}} AND c = {{a}}", statement)
}

func TestParseVariables(t *testing.T) {
	statement := "WHERE created_at > {{since | date}} AND id = {{since}} " +
		"AND region = {{region | string | required}} LIMIT {{limit:integer}} OFFSET {{offset}}"

	vars := ParseVariables(statement)

	assert.Equal(t, []models.QueryVariable{
		{Name: "since", Qualifiers: []string{"date"}},
		{Name: "region", Qualifiers: []string{"string", "required"}},
		{Name: "limit", Qualifiers: []string{"integer"}},
		{Name: "offset"},
	}, vars)
}

func TestParseVariables_FirstOccurrenceQualifiersWin(t *testing.T) {
	vars := ParseVariables("{{x}} {{x | date}}")

	assert.Equal(t, []models.QueryVariable{{Name: "x"}}, vars)
}

func TestParseVariables_EmptyQualifier(t *testing.T) {
	vars := ParseVariables("{{x | }} {{y ||}}")

	assert.Equal(t, []models.QueryVariable{{Name: "x"}, {Name: "y"}}, vars)
}

func TestMissingBindValues(t *testing.T) {
	statement := "WHERE d BETWEEN {{start_date}} AND {{end_date}} AND r = {{region}}"

	missing := MissingBindValues(statement, map[string]any{
		"start_date": "2024-01-01",
		"region":     nil,
	})

	assert.Equal(t, []string{"end_date", "region"}, missing)
	assert.Nil(t, MissingBindValues("SELECT 1", nil))
}

func TestFindVariablesInStringLiterals(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		expected  []string
	}{
		{
			name:      "variable inside literal",
			statement: "SELECT 'Hello {{name}}' FROM users",
			expected:  []string{"name"},
		},
		{
			name:      "variable outside literal",
			statement: "SELECT * FROM users WHERE name = {{name}}",
			expected:  nil,
		},
		{
			name:      "mixed",
			statement: "SELECT * FROM logs WHERE message = '{{not_bound}}' AND user_id = {{user_id}}",
			expected:  []string{"not_bound"},
		},
		{
			name:      "escaped quote keeps literal open",
			statement: "SELECT 'it''s {{who}}' FROM t",
			expected:  []string{"who"},
		},
		{
			name:      "qualified variable inside literal",
			statement: "SELECT '{{d | date}}'",
			expected:  []string{"d"},
		},
		{
			name:      "unterminated literal is ignored",
			statement: "SELECT '{{x}}",
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindVariablesInStringLiterals(tt.statement))
		})
	}
}
