package appserver

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	immutableCacheControl  = "public, max-age=31536000, immutable"
	revalidateCacheControl = "no-cache"
)

// CachePolicy decides the Cache-Control header of bundle files.
type CachePolicy struct {
	immutable []string
}

// NewCachePolicy validates the immutable glob patterns.
// Supports:
//   - * matches any sequence of non-separator characters
//   - ** matches any sequence of characters including separators
//   - {a,b} matches either a or b
func NewCachePolicy(immutable []string) (*CachePolicy, error) {
	for _, pattern := range immutable {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid immutable pattern %q", pattern)
		}
	}
	return &CachePolicy{immutable: append([]string(nil), immutable...)}, nil
}

// CacheControl returns the header value for a request path.
func (c *CachePolicy) CacheControl(requestPath string) string {
	for _, pattern := range c.immutable {
		if matched, err := doublestar.Match(pattern, requestPath); err == nil && matched {
			return immutableCacheControl
		}
	}
	return revalidateCacheControl
}
