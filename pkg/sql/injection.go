package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a bind value.
type InjectionCheckResult struct {
	IsSQLi       bool   // True if SQL injection pattern detected
	Fingerprint  string // libinjection fingerprint of the detected pattern
	VariableName string // Name of the variable whose value failed the check
	Value        any    // The value that was checked
}

// CheckBindValue uses libinjection to detect SQL injection patterns in a value
// supplied for a template variable.
//
// Only string values are checked - numbers, booleans, and other types cannot
// contain SQL injection patterns and will return nil (no injection detected).
//
// Example:
//
//	result := CheckBindValue("search", "'; DROP TABLE users--")
//	// result.IsSQLi == true
//	// result.VariableName == "search"
func CheckBindValue(name string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:       true,
			Fingerprint:  string(fingerprint),
			VariableName: name,
			Value:        value,
		}
	}

	return nil
}

// CheckBindValues screens every supplied value and returns one result per
// variable that failed, sorted by variable name. Returns nil if all values
// are clean.
func CheckBindValues(values map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range values {
		if result := CheckBindValue(name, value); result != nil {
			results = append(results, result)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].VariableName < results[j].VariableName
	})
	return results
}
