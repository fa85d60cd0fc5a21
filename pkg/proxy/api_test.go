package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/cmsgate/pkg/credential"
	"github.com/ideamans/cmsgate/pkg/dispatch"
	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

func newTestAPIProxy(t *testing.T, url string, opts APIOptions) *APIProxy {
	t.Helper()
	target := newTestTarget(t, url)
	if opts.Logger == nil {
		opts.Logger = logging.NewTestLogger()
	}
	return NewAPIProxy(target, credential.NewInjector(target), opts)
}

func TestAPIProxy_InjectsPublicCredential(t *testing.T) {
	var got http.Header
	var gotPath, gotQuery string
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1}]`)
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	resp, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/posts?page=2", nil))
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.False(t, resp.Fallback)
	assert.Equal(t, `[{"id":1}]`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, "/api/posts", gotPath)
	assert.Equal(t, "page=2", gotQuery)
	assert.Equal(t, testKey, got.Get(credential.APIHeader))
	assert.Empty(t, got.Get(credential.AdminHeader))
}

func TestAPIProxy_InjectsAdminCredential(t *testing.T) {
	var got http.Header
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set(credential.APIHeader, "spoofed")
	_, err := p.Handle(req)
	require.NoError(t, err)

	assert.Equal(t, testKey, got.Get(credential.AdminHeader))
	assert.Empty(t, got.Get(credential.APIHeader))
}

func TestAPIProxy_ForwardsOnlyWhitelistedHeaders(t *testing.T) {
	var got http.Header
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "ja")
	req.Header.Set("If-None-Match", `"v1"`)
	req.Header.Set("Cookie", "cms_session=abc")
	req.Header.Set("Authorization", "Bearer xyz")
	req.Header.Set("X-Custom", "1")
	_, err := p.Handle(req)
	require.NoError(t, err)

	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "ja", got.Get("Accept-Language"))
	assert.Equal(t, `"v1"`, got.Get("If-None-Match"))
	assert.Empty(t, got.Get("Cookie"))
	assert.Empty(t, got.Get("Authorization"))
	assert.Empty(t, got.Get("X-Custom"))
	assert.Equal(t, "192.0.2.1", got.Get("X-Forwarded-For"))
	assert.Equal(t, "192.0.2.1", got.Get("X-Real-IP"))
}

func TestAPIProxy_ForwardsBody(t *testing.T) {
	var gotBody, gotMethod, gotType string
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotMethod, gotType = string(b), r.Method, r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Handle(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"text":"hi"}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestAPIProxy_RedactsSecretFromResponse(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A misbehaving CMS echoing the credential back.
		w.Header().Set(credential.APIHeader, r.Header.Get(credential.APIHeader))
		w.Header().Set("X-Debug", "key="+r.Header.Get(credential.APIHeader))
		w.Header().Set("Connection", "close")
		_, _ = io.WriteString(w, `{"echo":"`+r.Header.Get(credential.APIHeader)+`"}`)
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	resp, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/debug", nil))
	require.NoError(t, err)

	assert.NotContains(t, string(resp.Body), testKey)
	assert.Equal(t, `{"echo":"[redacted]"}`, string(resp.Body))
	assert.Empty(t, resp.Header.Get(credential.APIHeader))
	assert.Equal(t, "key=[redacted]", resp.Header.Get("X-Debug"))
	assert.Empty(t, resp.Header.Get("Connection"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
}

func TestAPIProxy_NotFoundIsFallback(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer cms.Close()

	rec := &fakeRecorder{}
	p := newTestAPIProxy(t, cms.URL, APIOptions{Recorder: rec})
	resp, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/ext/ping", nil))
	require.NoError(t, err)

	assert.True(t, resp.Fallback)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "api", rec.calls[0].proxy)
	assert.Equal(t, http.StatusNotFound, rec.calls[0].status)
}

func TestAPIProxy_RelaysUpstreamErrors(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "maintenance")
	}))
	defer cms.Close()

	logger := logging.NewTestLogger()
	p := newTestAPIProxy(t, cms.URL, APIOptions{Logger: logger})
	resp, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "maintenance", string(resp.Body))
	assert.False(t, resp.Fallback)
	assert.True(t, logger.Contains("API upstream returned an error"))
}

func TestAPIProxy_Timeout(t *testing.T) {
	release := make(chan struct{})
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer cms.Close()
	defer close(release)

	p := newTestAPIProxy(t, cms.URL, APIOptions{Timeout: 50 * time.Millisecond})
	_, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/slow", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, httperr.ErrUpstreamTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, httperr.Status(err))
}

func TestAPIProxy_Unreachable(t *testing.T) {
	cms := httptest.NewServer(http.NotFoundHandler())
	url := cms.URL
	cms.Close()

	logger := logging.NewTestLogger()
	p := newTestAPIProxy(t, url, APIOptions{Logger: logger})
	_, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, httperr.ErrUpstreamUnavailable))
	assert.Equal(t, http.StatusBadGateway, httperr.Status(err))
	assert.False(t, logger.Contains(testKey))
}

func TestAPIProxy_ResponseTooLarge(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{MaxResponseBytes: 16})
	_, err := p.Handle(httptest.NewRequest(http.MethodGet, "/api/big", nil))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, httperr.Status(err))
}

func TestAPIProxy_InChainDefersToExtension(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/posts" {
			_, _ = io.WriteString(w, "posts")
			return
		}
		http.NotFound(w, r)
	}))
	defer cms.Close()

	ext := dispatch.StepFunc(func(r *http.Request) (*dispatch.Response, error) {
		if r.URL.Path != "/api/ext/ping" {
			return nil, nil
		}
		return &dispatch.Response{Status: http.StatusOK, Body: []byte("pong")}, nil
	})
	chain := dispatch.NewChain([]dispatch.Step{newTestAPIProxy(t, cms.URL, APIOptions{}), ext},
		dispatch.WithChainLogger(logging.NewTestLogger()))

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/api/posts", http.StatusOK, "posts"},
		{"/api/ext/ping", http.StatusOK, "pong"},
		{"/api/none", http.StatusNotFound, "404 page not found\n"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestAPIProxy_KeepsPathEscaping(t *testing.T) {
	var gotURI string
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/content/posts/a%2Fb?x=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/content/posts/a%2Fb?x=1", gotURI)
}

func TestAPIProxy_HeadKeepsContentLength(t *testing.T) {
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "11")
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `{"id":"42"}`)
		}
	}))
	defer cms.Close()

	p := newTestAPIProxy(t, cms.URL, APIOptions{})

	head := httptest.NewRecorder()
	p.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/api/posts", nil))
	assert.Equal(t, http.StatusOK, head.Code)
	assert.Equal(t, "11", head.Header().Get("Content-Length"))
	assert.Empty(t, head.Body.String())

	get := httptest.NewRecorder()
	p.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	assert.Equal(t, "11", get.Header().Get("Content-Length"))
	assert.Equal(t, `{"id":"42"}`, get.Body.String())
}

func TestAPIProxy_ForwardedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		trust    bool
		wantIP   string
		wantFor  string
		wantHost string
	}{
		{"client values ignored by default", false, "192.0.2.1", "192.0.2.1", "example.com"},
		{"client values kept when trusted", true, "10.9.9.9", "10.8.8.8, 192.0.2.1", "public.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
			}))
			defer cms.Close()

			p := newTestAPIProxy(t, cms.URL, APIOptions{TrustForwardedHeaders: tt.trust})
			req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
			req.Header.Set("X-Real-IP", "10.9.9.9")
			req.Header.Set("X-Forwarded-For", "10.8.8.8")
			req.Header.Set("X-Forwarded-Host", "public.example")
			_, err := p.Handle(req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantIP, got.Get("X-Real-IP"))
			assert.Equal(t, tt.wantFor, got.Get("X-Forwarded-For"))
			assert.Equal(t, tt.wantHost, got.Get("X-Forwarded-Host"))
		})
	}
}
