package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ideamans/cmsgate/pkg/dispatch"
	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// Config configures the API rate limit.
type Config struct {
	// Rate is the number of requests allowed per Interval. 0 disables limiting.
	Rate     int           `yaml:"rate" json:"rate"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	// Prefixes are the path prefixes subject to limiting (default /api).
	Prefixes []string `yaml:"prefixes" json:"prefixes"`
	// Exempt are glob patterns never limited, e.g. "/api/ext/*".
	Exempt []string `yaml:"exempt" json:"exempt"`
	// TrustForwardedFor keys buckets on the first X-Forwarded-For address.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
}

// Enabled reports whether limiting is switched on.
func (c Config) Enabled() bool { return c.Rate > 0 }

// Middleware applies a Limiter to matching requests.
type Middleware struct {
	limiter  *Limiter
	scope    dispatch.Matcher
	exempt   []dispatch.Matcher
	trustXFF bool
	logger   logging.Logger
}

// NewMiddleware builds the middleware. Exempt patterns are compiled here so
// a bad glob fails at startup.
func NewMiddleware(cfg Config, limiter *Limiter, logger logging.Logger) (*Middleware, error) {
	prefixes := cfg.Prefixes
	if len(prefixes) == 0 {
		prefixes = []string{"/api"}
	}

	m := &Middleware{
		limiter:  limiter,
		scope:    dispatch.NewPrefixMatcher(prefixes...),
		trustXFF: cfg.TrustForwardedFor,
		logger:   logger,
	}
	for _, pattern := range cfg.Exempt {
		g, err := dispatch.NewGlobMatcher(pattern)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: exempt pattern %q: %w", pattern, err)
		}
		m.exempt = append(m.exempt, g)
	}
	return m, nil
}

// Wrap returns next guarded by the limiter.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.applies(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + m.clientKey(r)
		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.Warn("Rate limit store failed, allowing request", "error", err)
		}
		if !allowed {
			wait := m.limiter.RetryAfter(r.Context(), key)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			m.logger.Info("Rate limit exceeded", "client", key, "path", r.URL.Path)
			httperr.WriteError(w, httperr.ErrTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) applies(path string) bool {
	if !m.scope.Match(path) {
		return false
	}
	for _, g := range m.exempt {
		if g.Match(path) {
			return false
		}
	}
	return true
}

func (m *Middleware) clientKey(r *http.Request) string {
	if m.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
