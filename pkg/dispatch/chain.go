package dispatch

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// DefaultMaxBodyBytes caps request bodies buffered by a Chain.
const DefaultMaxBodyBytes int64 = 10 << 20

// Response is a complete response produced by a chain step.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Fallback marks an answer that is only used when no later step
	// answers. The API proxy uses it for upstream 404s.
	Fallback bool
}

// Step is one handler in a Chain. A nil response means "not mine, continue".
// A non-nil error ends the chain with the mapped error status.
type Step interface {
	Handle(r *http.Request) (*Response, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(r *http.Request) (*Response, error)

func (f StepFunc) Handle(r *http.Request) (*Response, error) { return f(r) }

// Chain runs its steps in order and writes exactly one response:
// the first non-fallback answer, else the first fallback answer, else 404.
type Chain struct {
	steps   []Step
	maxBody int64
	logger  logging.Logger
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithMaxBodyBytes sets the request body limit (413 when exceeded).
func WithMaxBodyBytes(n int64) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithChainLogger sets the chain logger.
func WithChainLogger(logger logging.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// NewChain creates a chain over steps.
func NewChain(steps []Step, opts ...ChainOption) *Chain {
	c := &Chain{
		steps:   append([]Step(nil), steps...),
		maxBody: DefaultMaxBodyBytes,
		logger:  logging.NewSimpleLogger("chain", logging.LevelInfo, false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve runs the steps against r. The request body is read once and
// replayed to every step.
func (c *Chain) Resolve(r *http.Request) (*Response, error) {
	body, err := c.readBody(r)
	if err != nil {
		return nil, err
	}

	var fallback *Response
	for i, step := range c.steps {
		req := r.Clone(r.Context())
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))

		resp, err := step.Handle(req)
		if err != nil {
			c.logger.Debug("Chain step failed", "step", i, "path", r.URL.Path, "error", err)
			return nil, err
		}
		switch {
		case resp == nil:
			continue
		case resp.Fallback:
			if fallback == nil {
				fallback = resp
			}
		default:
			return resp, nil
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	return nil, httperr.ErrRouteNotFound
}

func (c *Chain) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Join(httperr.ErrBadRequest, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, httperr.ErrPayloadTooLarge
	}
	return body, nil
}

// ServeHTTP resolves the chain and writes its single response.
func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := c.Resolve(r)
	if err != nil {
		httperr.WriteError(w, err)
		return
	}
	WriteResponse(w, r, resp)
}

// WriteResponse copies resp to w. Bodies are omitted for HEAD requests,
// and a HEAD response keeps any Content-Length it already declares.
func WriteResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	dst := w.Header()
	for k, vv := range resp.Header {
		dst[k] = append([]string(nil), vv...)
	}
	keepLength := r.Method == http.MethodHead && dst.Get("Content-Length") != ""
	if !keepLength {
		dst.Del("Content-Length")
		if resp.Status != http.StatusNoContent && resp.Status != http.StatusNotModified {
			dst.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		}
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if r.Method != http.MethodHead && len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
