package httperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrUpstreamUnavailable, http.StatusBadGateway},
		{ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrRouteNotFound, http.StatusNotFound},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("proxy: %w", ErrUpstreamUnavailable), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), "err=%v", tt.err)
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	refused := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	err := Classify(refused)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, refused)

	assert.ErrorIs(t, Classify(context.DeadlineExceeded), ErrUpstreamTimeout)
	assert.ErrorIs(t, Classify(fmt.Errorf("get: %w", timeoutErr{})), ErrUpstreamTimeout)

	already := Classify(refused)
	assert.Equal(t, already, Classify(already))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, Classify(errors.New("connection refused to secret-host")))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Bad Gateway","status":502}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret-host", "causes are not echoed")
}
