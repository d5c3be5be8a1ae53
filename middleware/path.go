package middleware

import (
	"path"
	"strings"
)

// fastPathClean returns path.Clean(p) without allocating for paths that are
// already clean, which is nearly every HTTP request path.
func fastPathClean(p string) string {
	if p == "" || p[0] != '/' {
		return path.Clean(p)
	}
	if strings.Contains(p, "//") || strings.Contains(p, "/.") {
		return path.Clean(p)
	}
	if len(p) > 1 && p[len(p)-1] == '/' {
		return path.Clean(p)
	}
	return p
}
