// Package sql provides SQL template variable utilities.
package sql

/*
Template Variable Syntax

Saved query statements mark bind parameters with double braces:

	SELECT * FROM orders
	WHERE created_at BETWEEN {{start_date}} AND {{end_date}}
	  AND status = {{status}}

The UI reads the variable list to render a form with one input per variable.
The order of the form follows the first appearance of each variable in the
statement, and a variable used several times gets a single input.

# Names

Variable names must:
- Start with a letter or underscore
- Contain only alphanumeric characters and underscores
- Match [a-zA-Z_]\w*

Names are case-sensitive: {{userId}} and {{userid}} are different variables.
Whitespace between the braces and the name is ignored: {{ start_date }}.

# Qualifiers

A marker may carry qualifiers after the name, introduced by '|' or ':'.
Qualifiers are hints for the form (an input type, a default widget) and are
never part of the variable name:

	{{start_date | date}}
	{{limit:integer}}
	{{region | string | required}}

Only the qualifiers of the first occurrence of a variable are reported by
ParseVariables. The qualifier grammar is deliberately loose: anything up to
the closing braces except another brace.

# What is not a marker

- Single braces: {user_id}
- Names that start with a digit or contain a hyphen: {{123}}, {{user-id}}
- Anything containing a brace between the delimiters: {{a{b}}
- A lone '{' or '}' anywhere in the statement is plain text and never an error

Markers are found anywhere in the text, including comments and string
literals. Use FindVariablesInStringLiterals to warn about markers that sit
inside quotes and therefore will not bind.

# Bind values

Values typed into the variable form are screened with libinjection before
they are handed to the execution layer (CheckBindValues), and
MissingBindValues reports variables left empty.
*/
