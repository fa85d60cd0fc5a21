package extension

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/cmsgate/pkg/dispatch"
)

func newBuiltinRegistry() *Registry {
	reg := NewRegistry()
	RegisterBuiltins(reg, RuntimeInfo{Mode: "production", Version: "1.2.3", Upstream: "https://cms.example.com"})
	return reg
}

func TestRegistry_Builtins(t *testing.T) {
	reg := newBuiltinRegistry()

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"ping", http.MethodGet, PingPath, http.StatusOK, `{"status":"ok"}`},
		{"ping head", http.MethodHead, PingPath, http.StatusOK, `{"status":"ok"}`},
		{"runtime", http.MethodGet, RuntimePath, http.StatusOK,
			`{"mode":"production","version":"1.2.3","upstream":"https://cms.example.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := reg.Handle(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.Status)
			assert.JSONEq(t, tt.body, string(resp.Body))
			assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.False(t, resp.Fallback)
		})
	}
}

func TestRegistry_UnknownPathContinues(t *testing.T) {
	resp, err := newBuiltinRegistry().Handle(httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestRegistry_WrongMethod(t *testing.T) {
	resp, err := newBuiltinRegistry().Handle(httptest.NewRequest(http.MethodPost, PingPath, nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	assert.Equal(t, "GET", resp.Header.Get("Allow"))
}

func TestRegistry_Routes(t *testing.T) {
	reg := newBuiltinRegistry()
	reg.Register(http.MethodPost, "/api/ext/echo", func(r *http.Request) (*dispatch.Response, error) {
		return JSON(http.StatusOK, nil), nil
	})
	assert.Equal(t, []string{"GET /api/ext/ping", "GET /api/ext/runtime", "POST /api/ext/echo"}, reg.Routes())
}

func TestJSON_EncodeFailure(t *testing.T) {
	resp := JSON(http.StatusOK, map[string]interface{}{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}
