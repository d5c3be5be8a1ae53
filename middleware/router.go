package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Morditux/throttle"
)

// ErrEmptyPath is returned for an endpoint without a path.
var ErrEmptyPath = errors.New("middleware: endpoint path is empty")

// EndpointConfig holds the throttle configuration for a specific endpoint.
type EndpointConfig struct {
	// Path is the URL path to match.
	// Supports exact match and prefix match (ending with *).
	Path string `yaml:"path"`

	// Methods are the HTTP methods to match.
	// Empty means all methods.
	Methods []string `yaml:"methods"`

	// Config is the throttle configuration for this endpoint.
	Config throttle.Config `yaml:",inline"`
}

// Validate checks the endpoint path and throttle configuration.
func (c EndpointConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return ErrEmptyPath
	}
	return c.Config.Validate()
}

// Router is an HTTP handler that applies per-endpoint throttling.
// Exact paths are tried before prefixes and longer prefixes before shorter
// ones, so a catch-all cannot shadow a stricter endpoint. Unmatched
// requests pass through.
type Router struct {
	endpoints []endpointLimiter
	handler   http.Handler
	options   *Options
}

// endpointLimiter holds a compiled endpoint configuration.
type endpointLimiter struct {
	config     EndpointConfig
	pattern    string
	retryAfter string
	limiter    *throttle.Keyed[string]
}

// NewRouter creates a new router with per-endpoint throttling.
func NewRouter(handler http.Handler, endpoints []EndpointConfig, opts ...Option) (*Router, error) {
	options := buildOptions(opts)

	r := &Router{
		endpoints: make([]endpointLimiter, 0, len(endpoints)),
		handler:   handler,
		options:   options,
	}

	for i, ep := range endpoints {
		if err := ep.Validate(); err != nil {
			return nil, fmt.Errorf("middleware: endpoint %d (%q): %w", i, ep.Path, err)
		}

		tOpts := options.ThrottleOptions
		if options.EndpointObserver != nil {
			if obs := options.EndpointObserver(ep.Path); obs != nil {
				tOpts = append(tOpts[:len(tOpts):len(tOpts)], throttle.WithObserver(obs))
			}
		}

		limiter, err := throttle.NewKeyed[string](ep.Config, tOpts...)
		if err != nil {
			return nil, fmt.Errorf("middleware: endpoint %d (%q): %w", i, ep.Path, err)
		}

		r.endpoints = append(r.endpoints, endpointLimiter{
			config:     ep,
			pattern:    cleanPattern(ep.Path),
			retryAfter: retryAfterSeconds(ep.Config.Lockout),
			limiter:    limiter,
		})
	}

	slices.SortStableFunc(r.endpoints, func(a, b endpointLimiter) int {
		return specificity(b.pattern) - specificity(a.pattern)
	})

	return r, nil
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Normalize once so //api/login and /api/./login hit the same endpoint.
	cleanPath := fastPathClean(req.URL.Path)

	for i := range r.endpoints {
		ep := &r.endpoints[i]
		if !matchEndpoint(cleanPath, req.Method, ep.pattern, ep.config.Methods) {
			continue
		}

		key := r.options.KeyFunc(req) + ":" + ep.config.Path
		w.Header().Set("Retry-After", ep.retryAfter)
		if !guard(w, req, ep.limiter, key, r.options) {
			return
		}
		w.Header().Del("Retry-After")
		r.handler.ServeHTTP(w, req)
		return
	}

	r.handler.ServeHTTP(w, req)
}

// Limiter returns the throttle of the endpoint registered with path.
func (r *Router) Limiter(path string) (*throttle.Keyed[string], bool) {
	for i := range r.endpoints {
		if r.endpoints[i].config.Path == path {
			return r.endpoints[i].limiter, true
		}
	}
	return nil, false
}

// Prune drops idle counters from every endpoint throttle and returns the
// total removed. See throttle.Keyed.Prune.
func (r *Router) Prune(idle time.Duration) int {
	n := 0
	for i := range r.endpoints {
		n += r.endpoints[i].limiter.Prune(idle)
	}
	return n
}

// matchEndpoint checks if a request matches an endpoint pattern and methods.
func matchEndpoint(cleanPath, method, pattern string, methods []string) bool {
	if !matchPath(cleanPath, pattern) {
		return false
	}
	if len(methods) == 0 {
		return true
	}
	return methodIncluded(method, methods)
}

// cleanPattern normalizes an endpoint path the way request paths are
// normalized, keeping a trailing * and the slash before it.
func cleanPattern(p string) string {
	prefix, wildcard := strings.CutSuffix(p, "*")
	if !wildcard {
		return fastPathClean(p)
	}
	if prefix == "" {
		return "*"
	}
	clean := fastPathClean(prefix)
	if strings.HasSuffix(prefix, "/") && clean != "/" {
		clean += "/"
	}
	return clean + "*"
}

// specificity ranks patterns, exact paths above any prefix.
func specificity(pattern string) int {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return len(prefix)
	}
	return math.MaxInt32
}

// retryAfterSeconds renders a lockout as a Retry-After value, at least 1.
func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
