package paths

import (
	"path"
	"strings"
)

// NormalizeRoute cleans a flow page route into its canonical form:
// a single leading slash, no trailing slash, no empty or dot segments.
func NormalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "/"
	}
	return path.Clean("/" + route)
}

// MatchRoute checks if a route matches a glob pattern.
// Segments match with path.Match; "**" matches zero or more segments.
func MatchRoute(pattern, route string) bool {
	return matchSegments(SplitPath(pattern), SplitPath(NormalizeRoute(route)))
}

func matchSegments(pattern, route []string) bool {
	if len(pattern) == 0 {
		return len(route) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], route) {
			return true
		}
		return len(route) > 0 && matchSegments(pattern, route[1:])
	}
	if len(route) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], route[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], route[1:])
}

// IsGlobPattern checks if a string contains glob characters
func IsGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
