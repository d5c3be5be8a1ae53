// Package middleware provides HTTP middleware for throttling.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"github.com/Morditux/throttle"
	"github.com/Morditux/throttle/store"
)

const defaultMaxKeySize = 4096

// KeyFunc is a function that extracts a throttling key from a request.
// Common implementations include IP-based, user-based, or API key-based extraction.
type KeyFunc func(r *http.Request) string

// OnLimitedFunc is called when a request is throttled.
// It should write the appropriate response to w.
type OnLimitedFunc func(w http.ResponseWriter, r *http.Request)

// Options configures the middleware and the Router.
type Options struct {
	// KeyFunc extracts the throttling key from the request.
	// Default: IP address from X-Forwarded-For, X-Real-IP or RemoteAddr.
	KeyFunc KeyFunc

	// OnLimited is called when a request is throttled.
	// Default: Returns 429 Too Many Requests with a JSON body.
	OnLimited OnLimitedFunc

	// ExcludePaths are paths that bypass throttling.
	ExcludePaths []string

	// IncludeMethods limits throttling to specific HTTP methods.
	// Empty means all methods are throttled.
	IncludeMethods []string

	// MaxKeySize is the longest key accepted, longer keys get 431.
	MaxKeySize int

	// Logger receives lockout and store error events. Default: no-op.
	Logger *zap.Logger

	// ThrottleOptions are applied to every endpoint throttle a Router creates.
	ThrottleOptions []throttle.Option

	// EndpointObserver, if set, is asked once per Router endpoint for an
	// outcome callback, typically metrics.Metrics.Observer.
	EndpointObserver func(path string) func(throttle.Outcome)
}

// Option is a function that configures Options.
type Option func(*Options)

// WithKeyFunc sets a custom key extraction function.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *Options) {
		o.KeyFunc = fn
	}
}

// WithOnLimited sets a custom throttled handler.
func WithOnLimited(fn OnLimitedFunc) Option {
	return func(o *Options) {
		o.OnLimited = fn
	}
}

// WithExcludePaths sets paths to exclude from throttling.
func WithExcludePaths(paths ...string) Option {
	return func(o *Options) {
		o.ExcludePaths = paths
	}
}

// WithIncludeMethods limits throttling to specific HTTP methods.
func WithIncludeMethods(methods ...string) Option {
	return func(o *Options) {
		o.IncludeMethods = methods
	}
}

// WithMaxKeySize sets the longest accepted key.
func WithMaxKeySize(n int) Option {
	return func(o *Options) {
		o.MaxKeySize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithThrottleOptions sets options for the throttles a Router creates,
// such as a clock or registry bounds.
func WithThrottleOptions(opts ...throttle.Option) Option {
	return func(o *Options) {
		o.ThrottleOptions = append(o.ThrottleOptions, opts...)
	}
}

// WithEndpointObserver sets the per-endpoint outcome callback factory.
func WithEndpointObserver(fn func(path string) func(throttle.Outcome)) Option {
	return func(o *Options) {
		o.EndpointObserver = fn
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{
		KeyFunc:    DefaultKeyFunc,
		OnLimited:  DefaultOnLimited,
		MaxKeySize: defaultMaxKeySize,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxKeySize <= 0 {
		options.MaxKeySize = defaultMaxKeySize
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return options
}

// DefaultKeyFunc extracts the client IP from the request.
// It checks X-Forwarded-For, X-Real-IP, and falls back to RemoteAddr.
// Addresses are canonicalized so ::ffff:1.2.3.4 and 1.2.3.4 share a key.
// Note: This function blindly trusts X-Forwarded-For, which can be spoofed.
// Use TrustedIPKeyFunc for a secure alternative when behind a proxy.
func DefaultKeyFunc(r *http.Request) string {
	if ip := firstForwarded(r.Header.Get("X-Forwarded-For")); ip != "" {
		return canonicalIP(ip)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return canonicalIP(xri)
	}
	return canonicalIP(getRemoteIP(r))
}

// firstForwarded returns the left-most entry of an X-Forwarded-For value
// without splitting the whole header.
func firstForwarded(xff string) string {
	if idx := strings.IndexByte(xff, ','); idx >= 0 {
		xff = xff[:idx]
	}
	return strings.TrimSpace(xff)
}

// parseIP accepts a bare address or one with a port, IPv4-mapped IPv6
// addresses are unmapped.
func parseIP(s string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}

// canonicalIP returns the canonical text form of s, or s itself if it is
// not an address.
func canonicalIP(s string) string {
	if addr, ok := parseIP(s); ok {
		return addr.String()
	}
	return s
}

// TrustedIPKeyFunc returns a KeyFunc that extracts the client IP trusting
// only the given proxies. X-Forwarded-For is walked from right to left and
// the first address outside trustedProxies is the client. Repeated
// X-Forwarded-For headers are read as one comma separated list.
// trustedProxies can be individual IPs or CIDR blocks (e.g., "10.0.0.0/8").
func TrustedIPKeyFunc(trustedProxies []string) (KeyFunc, error) {
	prefixes := make([]netip.Prefix, 0, len(trustedProxies))
	for _, t := range trustedProxies {
		prefix, err := netip.ParsePrefix(t)
		if err != nil {
			addr, aerr := netip.ParseAddr(t)
			if aerr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR: %s", t)
			}
			addr = addr.Unmap()
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, prefix.Masked())
	}

	isTrusted := func(addr netip.Addr) bool {
		for _, p := range prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		remoteIP := getRemoteIP(r)

		// An unparsable or untrusted peer is the client itself.
		remote, ok := parseIP(remoteIP)
		if !ok {
			return remoteIP
		}
		if !isTrusted(remote) {
			return remote.String()
		}

		values := r.Header.Values("X-Forwarded-For")
		if len(values) == 0 {
			return remote.String()
		}

		// Walk backwards without splitting the header.
		for i := len(values) - 1; i >= 0; i-- {
			rest := values[i]
			for rest != "" {
				var part string
				if idx := strings.LastIndexByte(rest, ','); idx >= 0 {
					part, rest = rest[idx+1:], rest[:idx]
				} else {
					part, rest = rest, ""
				}

				addr, ok := parseIP(strings.TrimSpace(part))
				if !ok {
					continue
				}
				if !isTrusted(addr) {
					return addr.String()
				}
			}
		}

		// Every hop is trusted: the original client is the left-most entry.
		if ip := firstForwarded(values[0]); ip != "" {
			return canonicalIP(ip)
		}
		return remote.String()
	}, nil
}

// getRemoteIP extracts the IP from RemoteAddr, handling IPv6 brackets and ports.
// Values net.SplitHostPort would reject are returned unchanged.
func getRemoteIP(r *http.Request) string {
	remoteAddr := r.RemoteAddr
	if remoteAddr == "" {
		return remoteAddr
	}

	if remoteAddr[0] == '[' {
		end := strings.IndexByte(remoteAddr, ']')
		if end > 0 && end+1 < len(remoteAddr) && remoteAddr[end+1] == ':' {
			return remoteAddr[1:end]
		}
		return remoteAddr
	}

	// host:port has exactly one colon, more means a bare IPv6 address
	if idx := strings.IndexByte(remoteAddr, ':'); idx >= 0 && idx == strings.LastIndexByte(remoteAddr, ':') {
		return remoteAddr[:idx]
	}
	return remoteAddr
}

// DefaultOnLimited returns a 429 response with a JSON body. A Retry-After
// header already set by the caller is kept.
func DefaultOnLimited(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	if h.Get("Retry-After") == "" {
		h.Set("Retry-After", "60")
	}
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"too many requests","message":"temporarily locked out, please try again later"}`))
}

// writeError writes a plain JSON error with the same hardening headers.
func writeError(w http.ResponseWriter, msg string, code int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}

// RateLimitMiddleware creates a throttling middleware around limiter,
// usually a *throttle.Keyed[string].
func RateLimitMiddleware(limiter throttle.Limiter, opts ...Option) func(http.Handler) http.Handler {
	options := buildOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range options.ExcludePaths {
				if matchPath(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if len(options.IncludeMethods) > 0 && !methodIncluded(r.Method, options.IncludeMethods) {
				next.ServeHTTP(w, r)
				return
			}

			key := options.KeyFunc(r)
			if !guard(w, r, limiter, key, options) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// guard applies limiter to key and writes the refusal response when the
// request must not proceed. It returns true when the caller should serve
// the request.
func guard(w http.ResponseWriter, r *http.Request, limiter throttle.Limiter, key string, options *Options) bool {
	// FAIL SECURE: oversized keys would bloat the registry.
	if len(key) > options.MaxKeySize {
		writeError(w, "throttle key too long", http.StatusRequestHeaderFieldsTooLarge)
		return false
	}

	var (
		allowed bool
		outcome throttle.Outcome
		err     error
	)
	if dl, ok := limiter.(throttle.DetailedLimiter); ok {
		outcome, err = dl.Check(key)
		allowed = err == nil && !outcome.Throttled()
	} else {
		allowed, err = limiter.Allow(key)
	}

	if err != nil {
		// FAIL SECURE: a key the registry cannot hold cannot be throttled.
		if errors.Is(err, store.ErrStoreFull) || errors.Is(err, store.ErrAdmissionDenied) {
			options.Logger.Warn("throttle registry refused key",
				zap.String("key", key),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			writeError(w, "throttle capacity exceeded", http.StatusServiceUnavailable)
			return false
		}

		// FAIL OPEN on anything else to keep serving.
		options.Logger.Error("throttle check failed",
			zap.String("key", key),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return true
	}

	// one line per lockout rather than one per refused request
	if outcome == throttle.LockoutStarted {
		options.Logger.Warn("lockout started",
			zap.String("key", key),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
	}

	if !allowed {
		options.OnLimited(w, r)
		return false
	}
	return true
}

func methodIncluded(method string, methods []string) bool {
	for _, m := range methods {
		if strings.EqualFold(method, m) {
			return true
		}
	}
	return false
}

// matchPath checks if a request path matches a pattern.
// Supports exact match and prefix match (pattern ending with *).
// A pattern ending in /* also matches the bare prefix, so /api/* matches /api.
func matchPath(path, pattern string) bool {
	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok {
		return path == pattern
	}
	if strings.HasPrefix(path, prefix) {
		return true
	}
	if base, ok := strings.CutSuffix(prefix, "/"); ok && base != "" {
		return path == base
	}
	return false
}
