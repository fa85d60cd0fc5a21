package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/cmsgate/pkg/credential"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

const testKey = "S123"

func newTestTarget(t *testing.T, rawURL string) *upstream.Target {
	t.Helper()
	target, err := upstream.NewTarget(rawURL, testKey)
	require.NoError(t, err)
	return target
}

type recordedCall struct {
	proxy   string
	status  int
	elapsed time.Duration
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) ObserveUpstream(proxy string, status int, elapsed time.Duration) {
	f.calls = append(f.calls, recordedCall{proxy, status, elapsed})
}

func TestAdminProxy_RelaysRequestAndResponse(t *testing.T) {
	var got *http.Request
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		http.SetCookie(w, &http.Cookie{Name: "cms_session", Value: "fresh"})
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "<html>admin</html>")
	}))
	defer cms.Close()

	rec := &fakeRecorder{}
	p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{Logger: logging.NewTestLogger(), Recorder: rec})

	req := httptest.NewRequest(http.MethodGet, "http://gateway.local/admin/index.html?x=1", nil)
	req.AddCookie(&http.Cookie{Name: "cms_session", Value: "abc"})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>admin</html>", w.Body.String())
	assert.Contains(t, w.Header().Get("Set-Cookie"), "cms_session=fresh")

	require.NotNil(t, got)
	assert.Equal(t, "/admin/index.html", got.URL.Path)
	assert.Equal(t, "x=1", got.URL.RawQuery)
	c, err := got.Cookie("cms_session")
	require.NoError(t, err)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "gateway.local", got.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, "http", got.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "192.0.2.1", got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, newTestTarget(t, cms.URL).Host(), got.Host)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "admin", rec.calls[0].proxy)
	assert.Equal(t, http.StatusOK, rec.calls[0].status)
}

func TestAdminProxy_NeverSendsCredentials(t *testing.T) {
	var adminHdr, apiHdr string
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminHdr = r.Header.Get(credential.AdminHeader)
		apiHdr = r.Header.Get(credential.APIHeader)
		w.Header().Set(credential.APIHeader, "leaked")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer cms.Close()

	p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{Logger: logging.NewTestLogger()})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set(credential.AdminHeader, "spoofed")
	req.Header.Set(credential.APIHeader, "spoofed")
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, adminHdr)
	assert.Empty(t, apiHdr)
	assert.Empty(t, w.Header().Get(credential.APIHeader))
}

func TestAdminProxy_RelaysUpstreamStatus(t *testing.T) {
	for _, status := range []int{http.StatusFound, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError} {
		cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status == http.StatusFound {
				w.Header().Set("Location", "/admin/login")
			}
			w.WriteHeader(status)
		}))

		p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{Logger: logging.NewTestLogger()})
		w := httptest.NewRecorder()
		p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/", nil))

		assert.Equal(t, status, w.Code)
		if status == http.StatusFound {
			assert.Equal(t, "/admin/login", w.Header().Get("Location"))
		}
		cms.Close()
	}
}

func TestAdminProxy_UpstreamUnreachable(t *testing.T) {
	cms := httptest.NewServer(http.NotFoundHandler())
	url := cms.URL
	cms.Close()

	logger := logging.NewTestLogger()
	p := NewAdminProxy(newTestTarget(t, url), AdminOptions{Logger: logger})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/theme/site.css", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"status":502`)
	assert.True(t, logger.Contains("Admin proxy upstream failure"))
	assert.False(t, logger.Contains(testKey))
}

func TestAdminProxy_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer cms.Close()
	defer close(release)

	p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{
		HeaderTimeout: 50 * time.Millisecond,
		Logger:        logging.NewTestLogger(),
	})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/upload/a.png", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestAdminProxy_ForwardedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		trust    bool
		wantIP   string
		wantFor  string
		wantHost string
	}{
		{"client values ignored by default", false, "192.0.2.1", "192.0.2.1", "gateway.local"},
		{"client values kept when trusted", true, "10.9.9.9", "10.8.8.8, 192.0.2.1", "public.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
			}))
			defer cms.Close()

			p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{
				TrustForwardedHeaders: tt.trust,
				Logger:                logging.NewTestLogger(),
			})
			req := httptest.NewRequest(http.MethodGet, "http://gateway.local/admin/index.html", nil)
			req.Header.Set("X-Real-IP", "10.9.9.9")
			req.Header.Set("X-Forwarded-For", "10.8.8.8")
			req.Header.Set("X-Forwarded-Host", "public.example")
			p.ServeHTTP(httptest.NewRecorder(), req)

			require.NotNil(t, got)
			assert.Equal(t, tt.wantIP, got.Get("X-Real-IP"))
			assert.Equal(t, tt.wantFor, got.Get("X-Forwarded-For"))
			assert.Equal(t, tt.wantHost, got.Get("X-Forwarded-Host"))
		})
	}
}

func TestAdminProxy_KeepsPathEscaping(t *testing.T) {
	var gotURI string
	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
	}))
	defer cms.Close()

	p := NewAdminProxy(newTestTarget(t, cms.URL), AdminOptions{Logger: logging.NewTestLogger()})
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/upload/a%2Fb.png", nil))
	assert.Equal(t, "/upload/a%2Fb.png", gotURI)
}
