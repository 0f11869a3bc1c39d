package middleware

import "strings"

// PathSet matches request paths. An entry ending in "*" matches by prefix,
// any other entry must equal the path.
type PathSet []string

// operationalPaths are never authenticated or profiled
var operationalPaths = PathSet{"/health", "/health/ready", "/metrics", "/swagger/*"}

// Match reports whether path is in the set
func (s PathSet) Match(path string) bool {
	for _, p := range s {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if p == path {
			return true
		}
	}
	return false
}

// With returns a copy of s extended by more
func (s PathSet) With(more ...string) PathSet {
	return append(append(PathSet{}, s...), more...)
}
