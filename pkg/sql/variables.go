package sql

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// variableRegex matches {{name}} markers in SQL templates. The name may be
// surrounded by whitespace and followed by qualifiers introduced with '|' or
// ':' (for example {{start_date | date}} or {{limit:integer}}). Braces are not
// allowed inside a marker, so a lone '{' or '}' never starts or ends one.
var variableRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z_]\w*)\s*(?:[|:]([^{}]*))?\}\}`)

// qualifierDelimiters separate qualifiers from each other inside a marker.
const qualifierDelimiters = "|:"

// ExtractVariables finds all {{variable}} markers in a statement and returns
// a deduplicated list of bare variable names in order of first appearance.
// Qualifiers are stripped.
//
// Example:
//
//	sql := "SELECT * FROM t WHERE d BETWEEN {{start_date}} AND {{end_date | date}}"
//	vars := ExtractVariables(sql)
//	// vars == []string{"start_date", "end_date"}
//
// If the same variable appears multiple times, it's only included once:
//
//	vars := ExtractVariables("{{a}} {{a}} {{b}}")
//	// vars == []string{"a", "b"}
func ExtractVariables(statement string) []string {
	matches := variableRegex.FindAllStringSubmatch(statement, -1)
	seen := make(map[string]bool)
	var names []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}

// ParseVariables is ExtractVariables with the qualifiers of each variable's
// first occurrence kept, for building a bind-value form.
//
// Example:
//
//	vars := ParseVariables("WHERE created_at > {{since | date}} AND id = {{since}}")
//	// vars == []models.QueryVariable{{Name: "since", Qualifiers: []string{"date"}}}
func ParseVariables(statement string) []models.QueryVariable {
	matches := variableRegex.FindAllStringSubmatch(statement, -1)
	seen := make(map[string]bool)
	var vars []models.QueryVariable

	for _, match := range matches {
		name := match[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, models.QueryVariable{
			Name:       name,
			Qualifiers: splitQualifiers(match[2]),
		})
	}

	return vars
}

func splitQualifiers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(qualifierDelimiters, r)
	})
	var qualifiers []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			qualifiers = append(qualifiers, p)
		}
	}
	return qualifiers
}

// MissingBindValues returns the variables of statement that have no value
// (absent or nil) in values, in order of first appearance.
func MissingBindValues(statement string, values map[string]any) []string {
	var missing []string
	for _, name := range ExtractVariables(statement) {
		if v, ok := values[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// FindVariablesInStringLiterals checks for {{variable}} markers that appear
// inside SQL string literals (single quotes). A bind parameter inside a string
// literal is treated as literal text by the database, so these markers will
// not receive the value the user typed into the form.
//
// Example:
//
//	problems := FindVariablesInStringLiterals("SELECT 'Hello {{name}}' FROM users")
//	// problems == []string{"name"}
func FindVariablesInStringLiterals(statement string) []string {
	var problems []string
	seen := make(map[string]bool)

	inString := false
	stringStart := 0
	i := 0

	for i < len(statement) {
		ch := statement[i]

		if ch == '\'' {
			if inString {
				// Escaped quote ('')
				if i+1 < len(statement) && statement[i+1] == '\'' {
					i += 2
					continue
				}
				literal := statement[stringStart+1 : i]
				for _, name := range ExtractVariables(literal) {
					if !seen[name] {
						seen[name] = true
						problems = append(problems, name)
					}
				}
				inString = false
			} else {
				inString = true
				stringStart = i
			}
		}
		i++
	}

	return problems
}
