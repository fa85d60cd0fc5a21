// Package httperr maps gateway failures to HTTP responses.
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

var (
	// ErrUpstreamUnavailable is a network-level failure reaching the CMS.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout is an upstream call that exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrRouteNotFound means no handler produced a response.
	ErrRouteNotFound = errors.New("route not found")

	// ErrBadRequest is a request the gateway refuses to route.
	ErrBadRequest = errors.New("bad request")

	// ErrTooManyRequests is returned by the API rate limiter.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrPayloadTooLarge is a request body over the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Classify converts a transport error from an upstream call into
// ErrUpstreamTimeout or ErrUpstreamUnavailable, keeping the cause wrapped.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &wrapped{kind: ErrUpstreamTimeout, cause: err}
	}
	return &wrapped{kind: ErrUpstreamUnavailable, cause: err}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string   { return w.kind.Error() + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }

type body struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// Write sends a small JSON error body. The message is the public text of
// the status, never the underlying cause.
func Write(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Error: http.StatusText(status), Status: status})
}

// WriteError sends the response Status(err) maps to.
func WriteError(w http.ResponseWriter, err error) {
	Write(w, Status(err))
}
