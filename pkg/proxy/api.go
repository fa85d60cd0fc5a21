package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ideamans/cmsgate/pkg/credential"
	"github.com/ideamans/cmsgate/pkg/dispatch"
	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

const (
	DefaultTimeout          = 15 * time.Second
	DefaultMaxResponseBytes = 64 << 20
)

// forwardedRequestHeaders are the only client headers an API call keeps.
// Cookies and credentials stay behind: the shared secret is the sole
// authentication the CMS sees on this path.
var forwardedRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"If-Modified-Since",
	"If-None-Match",
	"User-Agent",
}

var errResponseTooLarge = errors.New("upstream response exceeds size limit")

// APIOptions configures an APIProxy.
type APIOptions struct {
	Timeout          time.Duration // whole call, body included (default 15s)
	MaxResponseBytes int64         // default 64MB
	// TrustForwardedHeaders keeps client-sent X-Forwarded-* and X-Real-IP.
	TrustForwardedHeaders bool
	Transport             http.RoundTripper
	Logger                logging.Logger
	Recorder              Recorder
}

// APIProxy forwards /api calls to the CMS with the shared secret attached
// and returns the complete upstream response. It is the first step of the
// /api dispatch chain.
type APIProxy struct {
	target   *upstream.Target
	injector *credential.Injector
	client   *http.Client
	maxBody  int64
	trust    bool
	logger   logging.Logger
	recorder Recorder
}

// NewAPIProxy creates the authenticated API proxy.
func NewAPIProxy(target *upstream.Target, injector *credential.Injector, opts APIOptions) *APIProxy {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := opts.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(timeout)
	}

	p := &APIProxy{
		target:   target,
		injector: injector,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Redirects are the caller's business.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		maxBody:  maxBody,
		trust:    opts.TrustForwardedHeaders,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if p.logger == nil {
		p.logger = logging.NewSimpleLogger("api-proxy", logging.LevelInfo, false)
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	return p
}

// Handle implements dispatch.Step. Upstream 404s come back as fallback
// responses so a local extension may still claim the path.
func (p *APIProxy) Handle(r *http.Request) (*dispatch.Response, error) {
	out, err := p.outbound(r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.Do(out)
	if err != nil {
		p.recorder.ObserveUpstream("api", 0, time.Since(start))
		p.logger.Warn("API upstream call failed", "method", r.Method, "path", r.URL.Path, "error", p.redactErr(err))
		return nil, httperr.Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		p.logger.Warn("Reading API upstream response failed", "path", r.URL.Path, "error", p.redactErr(err))
		return nil, httperr.Classify(err)
	}
	if int64(len(body)) > p.maxBody {
		return nil, httperr.Classify(errResponseTooLarge)
	}

	elapsed := time.Since(start)
	p.recorder.ObserveUpstream("api", resp.StatusCode, elapsed)
	if resp.StatusCode >= http.StatusInternalServerError {
		p.logger.Warn("API upstream returned an error", "method", r.Method, "path", r.URL.Path, "status", resp.StatusCode)
	} else {
		p.logger.Debug("Proxied API request", "method", r.Method, "path", r.URL.Path, "status", resp.StatusCode, "duration", elapsed)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	// A HEAD answer has no body to measure, so its length is the upstream's.
	if r.Method != http.MethodHead {
		header.Del("Content-Length")
	}
	p.injector.RedactHeader(header)

	return &dispatch.Response{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     p.injector.Redact(body),
		Fallback: resp.StatusCode == http.StatusNotFound,
	}, nil
}

// ServeHTTP lets the proxy be used on its own, outside a chain.
func (p *APIProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := p.Handle(r)
	if err != nil {
		httperr.WriteError(w, err)
		return
	}
	dispatch.WriteResponse(w, r, resp)
}

func (p *APIProxy) outbound(r *http.Request) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		body = r.Body
	}

	target := p.target.Resolve(r.URL.EscapedPath(), r.URL.RawQuery)
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httperr.ErrBadRequest, err)
	}
	if body != nil && r.ContentLength > 0 {
		out.ContentLength = r.ContentLength
	}

	for _, name := range forwardedRequestHeaders {
		if v := r.Header.Values(name); len(v) > 0 {
			out.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
		}
	}
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", "")
	}
	setForwardedHeaders(out, r, p.trust)
	appendForwardedFor(out, r, p.trust)
	p.injector.Apply(out)

	return out, nil
}

// redactErr renders err for logs; url.Error messages include the URL,
// which never holds the key, but the scrub keeps that true if it changes.
func (p *APIProxy) redactErr(err error) string {
	return string(p.injector.Redact([]byte(err.Error())))
}
