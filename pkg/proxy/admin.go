package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/ideamans/cmsgate/pkg/credential"
	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

// AdminOptions configures an AdminProxy.
type AdminOptions struct {
	// HeaderTimeout bounds the wait for upstream response headers.
	// Bodies may stream for longer.
	HeaderTimeout time.Duration
	// TrustForwardedHeaders keeps client-sent X-Forwarded-* and X-Real-IP.
	// Only set it behind a proxy that overwrites them.
	TrustForwardedHeaders bool
	Transport             http.RoundTripper
	Logger                logging.Logger
	Recorder              Recorder
}

// AdminProxy relays admin and static requests to the CMS unchanged. The
// CMS authenticates them with its own session cookie, so no shared secret
// is ever attached here.
type AdminProxy struct {
	target   *upstream.Target
	proxy    *httputil.ReverseProxy
	logger   logging.Logger
	recorder Recorder
}

// NewAdminProxy creates the admin/static reverse proxy for target.
func NewAdminProxy(target *upstream.Target, opts AdminOptions) *AdminProxy {
	p := &AdminProxy{
		target:   target,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if p.logger == nil {
		p.logger = logging.NewSimpleLogger("admin-proxy", logging.LevelInfo, false)
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}

	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts.HeaderTimeout)
	}

	rp := httputil.NewSingleHostReverseProxy(target.URL())
	originalDirector := rp.Director
	upstreamHost := target.Host()
	trust := opts.TrustForwardedHeaders

	rp.Director = func(req *http.Request) {
		setForwardedHeaders(req, req, trust)
		if !trust {
			// ReverseProxy appends the client IP to whatever chain is left.
			req.Header.Del("X-Forwarded-For")
		}
		originalDirector(req)
		req.Host = upstreamHost

		credential.StripHeaders(req.Header)

		if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
		}
	}

	rp.ModifyResponse = func(resp *http.Response) error {
		credential.StripHeaders(resp.Header)
		return nil
	}

	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			p.logger.Debug("Client went away during admin proxy call", "path", r.URL.Path)
			w.WriteHeader(499)
			return
		}
		classified := httperr.Classify(err)
		p.logger.Warn("Admin proxy upstream failure", "method", r.Method, "path", r.URL.Path, "error", err)
		httperr.WriteError(w, classified)
	}

	rp.Transport = transport
	rp.FlushInterval = 100 * time.Millisecond
	rp.BufferPool = newBufferPool()

	p.proxy = rp
	return p
}

// ServeHTTP proxies r to the CMS.
func (p *AdminProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}

	p.proxy.ServeHTTP(sw, r)

	elapsed := time.Since(start)
	p.recorder.ObserveUpstream("admin", sw.status, elapsed)
	p.logger.Debug("Proxied admin request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "duration", elapsed)
}

// newTransport clones the default transport with pooled connections sized
// for a single upstream host.
func newTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 200
	t.MaxIdleConnsPerHost = 100
	t.IdleConnTimeout = 90 * time.Second
	t.ResponseHeaderTimeout = headerTimeout
	t.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	return t
}
