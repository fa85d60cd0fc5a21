package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ideamans/cmsgate/pkg/appserver"
	"github.com/ideamans/cmsgate/pkg/dispatch"
	sharedconfig "github.com/ideamans/cmsgate/pkg/shared/config"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

var validLogLevels = []string{"debug", "info", "warn", "warning", "error", "fatal"}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	verr := NewValidationError()

	if _, err := c.Target(); err != nil {
		verr.Add(err)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		verr.Add(&FieldError{Field: "server.port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port)})
	}
	if c.Server.ShutdownTimeout < 0 {
		verr.Add(&FieldError{Field: "server.shutdown_timeout", Reason: "must not be negative"})
	}
	if c.Server.MaxBodyBytes < 0 {
		verr.Add(&FieldError{Field: "server.max_body_bytes", Reason: "must not be negative"})
	}

	if c.Upstream.Timeout <= 0 {
		verr.Add(&FieldError{Field: "upstream.timeout", Reason: "must be positive"})
	}
	if c.Upstream.HeaderTimeout < 0 {
		verr.Add(&FieldError{Field: "upstream.header_timeout", Reason: "must not be negative"})
	}
	if c.Upstream.MaxResponseBytes < 0 {
		verr.Add(&FieldError{Field: "upstream.max_response_bytes", Reason: "must not be negative"})
	}

	c.validateRateLimit(verr)

	if c.Metrics.Addr != "" && c.Metrics.Addr == c.Server.Addr() {
		verr.Add(&FieldError{Field: "metrics.addr", Reason: "must differ from the public listener"})
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		verr.Add(&FieldError{Field: "metrics.path", Reason: "must start with /"})
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.Logging.Level)) {
		verr.Add(&FieldError{Field: "logging.level", Reason: fmt.Sprintf("must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Logging.Level)})
	}

	return verr.ErrorOrNil()
}

func (c *Config) validateRateLimit(verr *ValidationError) {
	rl := c.RateLimit
	if rl.Rate < 0 {
		verr.Add(&FieldError{Field: "rate_limit.rate", Reason: "must not be negative"})
	}
	if rl.Interval < 0 {
		verr.Add(&FieldError{Field: "rate_limit.interval", Reason: "must not be negative"})
	}
	for _, pattern := range rl.Exempt {
		if _, err := dispatch.NewGlobMatcher(pattern); err != nil {
			verr.Add(&FieldError{Field: "rate_limit.exempt", Reason: err.Error()})
		}
	}

	switch rl.Store.Type {
	case "", "memory":
	case "leveldb":
		if rl.Store.LevelDB.Path == "" {
			verr.Add(&FieldError{Field: "rate_limit.store.leveldb.path", Reason: "is required for the leveldb store"})
		}
	case "redis":
		if rl.Store.Redis.Addr == "" {
			verr.Add(&FieldError{Field: "rate_limit.store.redis.addr", Reason: "is required for the redis store"})
		}
	default:
		verr.Add(&FieldError{Field: "rate_limit.store.type", Reason: fmt.Sprintf("must be memory, leveldb or redis, got %q", rl.Store.Type)})
	}
}

// Target builds the upstream target from the upstream section.
func (c *Config) Target() (*upstream.Target, error) {
	return upstream.NewTarget(c.Upstream.URL, c.Upstream.AccessKey)
}

// SummaryItem is one line of a configuration summary.
type SummaryItem struct {
	Key   string
	Value string
}

// Summary describes the effective configuration with secrets masked.
func (c *Config) Summary() []SummaryItem {
	items := []SummaryItem{
		{"mode", c.Mode()},
		{"listen", c.Server.Addr()},
		{"upstream.url", c.Upstream.URL},
		{"upstream.access_key", sharedconfig.Mask(c.Upstream.AccessKey)},
		{"upstream.timeout", c.Upstream.Timeout.String()},
	}
	if c.Server.Dev {
		dev := c.App.DevServerURL
		if dev == "" {
			dev = appserver.DefaultDevServerURL
		}
		items = append(items, SummaryItem{"app.dev_server_url", dev})
	} else {
		dist := c.App.DistDir
		if dist == "" {
			dist = appserver.DefaultDistDir
		}
		items = append(items, SummaryItem{"app.dist_dir", dist})
	}

	if c.RateLimit.Rate > 0 {
		store := c.RateLimit.Store.Type
		if store == "" {
			store = "memory"
		}
		items = append(items,
			SummaryItem{"rate_limit", strconv.Itoa(c.RateLimit.Rate) + " per " + c.RateLimit.Interval.String()},
			SummaryItem{"rate_limit.store", store},
		)
	} else {
		items = append(items, SummaryItem{"rate_limit", "disabled"})
	}

	metrics := "disabled"
	if c.Metrics.Addr != "" {
		metrics = c.Metrics.Addr + c.Metrics.Path
	}
	items = append(items,
		SummaryItem{"metrics", metrics},
		SummaryItem{"logging.level", c.Logging.Level},
	)
	return items
}
