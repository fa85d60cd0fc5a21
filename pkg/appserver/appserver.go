// Package appserver serves the gateway's own front-end: the live bundler in
// development, the built bundle directory in production.
package appserver

import (
	"fmt"
	"net/http"

	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

const (
	DefaultDevServerURL = "http://localhost:5173"
	DefaultDistDir      = "dist"
)

// DefaultImmutable matches the content-hashed output of the bundler.
var DefaultImmutable = []string{"/assets/**"}

// Config selects and configures the app server.
type Config struct {
	DevServerURL string   `yaml:"dev_server_url" json:"dev_server_url"`
	DistDir      string   `yaml:"dist_dir" json:"dist_dir"`
	Immutable    []string `yaml:"immutable" json:"immutable"`
	Watch        bool     `yaml:"watch" json:"watch"`
}

// New returns the development proxy when dev is set, else the static server.
func New(cfg Config, dev bool, logger logging.Logger) (http.Handler, error) {
	if dev {
		url := cfg.DevServerURL
		if url == "" {
			url = DefaultDevServerURL
		}
		return NewDevProxy(url, logger)
	}

	dir := cfg.DistDir
	if dir == "" {
		dir = DefaultDistDir
	}
	immutable := cfg.Immutable
	if immutable == nil {
		immutable = DefaultImmutable
	}
	policy, err := NewCachePolicy(immutable)
	if err != nil {
		return nil, fmt.Errorf("appserver: %w", err)
	}
	return NewStatic(dir, policy, logger)
}
