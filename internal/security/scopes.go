package security

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Interaction scope letters.
const (
	LetterRead   = "r"
	LetterCreate = "c"
	LetterUpdate = "u"
	LetterSearch = "s"
	LetterDelete = "d"
)

// DefaultScopeDescription describes the configured default OAuth scope.
const DefaultScopeDescription = "Default scope for all paths and operations"

// InteractionScopes returns "{base}/{resourceType}.{letter}" for every base.
func InteractionScopes(resourceType, letter string, bases []string) []string {
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		out = append(out, fmt.Sprintf("%s/%s.%s", base, resourceType, letter))
	}
	return out
}

// Describe returns the human readable description of a scope: its final
// path segment with the first letter upper-cased, followed by " access".
func Describe(scope string) string {
	last := scope
	if i := strings.LastIndex(scope, "/"); i >= 0 {
		last = scope[i+1:]
	}
	r, size := utf8.DecodeRuneInString(last)
	if r == utf8.RuneError {
		return last + " access"
	}
	return cases.Upper(language.English).String(string(r)) + last[size:] + " access"
}

// belongsToClientCredentials reports whether a SMART scope is usable by a
// backend client: system scopes and definition URLs.
func belongsToClientCredentials(scope string) bool {
	return strings.HasPrefix(scope, BaseSystem+"/") || isDefinitionScope(scope)
}

// belongsToAuthorizationCode reports whether a SMART scope is usable in a
// user-facing launch: user, patient and definition URL scopes.
func belongsToAuthorizationCode(scope string) bool {
	return strings.HasPrefix(scope, BaseUser+"/") ||
		strings.HasPrefix(scope, BasePatient+"/") ||
		isDefinitionScope(scope)
}

func isDefinitionScope(scope string) bool {
	return strings.HasPrefix(scope, "http")
}
