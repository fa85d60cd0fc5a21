package appserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// DevProxy forwards everything to the bundler's dev server, including the
// WebSocket used for hot reload.
type DevProxy struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger logging.Logger
}

// NewDevProxy creates a proxy to rawURL.
func NewDevProxy(rawURL string, logger logging.Logger) (*DevProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("appserver: invalid dev server URL: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("appserver: dev server URL must be http(s)://host, got %q", rawURL)
	}

	p := &DevProxy{target: target, logger: logger}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.FlushInterval = 100 * time.Millisecond
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warn("Dev server unreachable, is the bundler running?", "url", p.target.String(), "path", r.URL.Path, "error", err)
		httperr.WriteError(w, httperr.Classify(err))
	}
	p.proxy = rp
	return p, nil
}

// ServeHTTP proxies r to the dev server.
func (p *DevProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}
