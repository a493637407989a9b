package meta

import "regexp"

// =============================================================================
// Variable Substitution
// =============================================================================

// placeholderRegex matches ${VAR} and ${VAR:-default}.
// Groups:
//   - Group 1: Variable name
//   - Group 2: ":-default" including the separator, empty when absent
//   - Group 3: Default value
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values from the variables map.
//
// Behavior:
//   - ${VAR} - replaced with variables["VAR"] if exists, otherwise kept as-is
//   - ${VAR:-default} - replaced with variables["VAR"] if exists, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	SubstituteVariables("Hello ${HELLO}", map[string]string{"HELLO": "World"})
//	// Returns: "Hello World"
//
//	SubstituteVariables("${WAIT:-1}", map[string]string{})
//	// Returns: "1"
func SubstituteVariables(value string, variables map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		sub := placeholderRegex.FindStringSubmatch(match)
		if val, ok := variables[sub[1]]; ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

// RenderFiles renders every file template with the given variables.
// Returns nil when there are no templates.
func RenderFiles(templates map[string]string, variables map[string]string) map[string]string {
	if len(templates) == 0 {
		return nil
	}
	files := make(map[string]string, len(templates))
	for path, tmpl := range templates {
		files[path] = SubstituteVariables(tmpl, variables)
	}
	return files
}
