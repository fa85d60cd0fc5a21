// Package credential decides which secret header an outbound CMS call carries.
package credential

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/ideamans/cmsgate/pkg/upstream"
)

const (
	// AdminHeader authenticates calls to the CMS administrative API.
	AdminHeader = "admin-authorization"
	// APIHeader authenticates calls to the CMS public API.
	APIHeader = "api-authorization"

	adminAPIPrefix = "/api/admin"
	redacted       = "[redacted]"
)

// Injector attaches the shared access key to outbound requests.
type Injector struct {
	key string
}

// NewInjector creates an injector for target.
func NewInjector(target *upstream.Target) *Injector {
	return &Injector{key: target.AccessKey()}
}

// HeaderName returns the header a call to path must carry. Only a leading
// /api/admin selects the admin header; the segment elsewhere in a path does not.
func HeaderName(path string) string {
	if strings.HasPrefix(path, adminAPIPrefix) {
		return AdminHeader
	}
	return APIHeader
}

// Headers returns the single credential header for path.
func (i *Injector) Headers(path string) http.Header {
	h := make(http.Header, 1)
	h.Set(HeaderName(path), i.key)
	return h
}

// Apply removes any credential headers already present on req and sets the
// one selected by req.URL.Path.
func (i *Injector) Apply(req *http.Request) {
	req.Header.Del(AdminHeader)
	req.Header.Del(APIHeader)
	req.Header.Set(HeaderName(req.URL.Path), i.key)
}

// Redact replaces every occurrence of the key in b. The match is on raw
// bytes, so a short key can also rewrite unrelated content that happens to
// contain it; upstream.Target.WeakKey flags such keys at startup.
func (i *Injector) Redact(b []byte) []byte {
	if !bytes.Contains(b, []byte(i.key)) {
		return b
	}
	return bytes.ReplaceAll(b, []byte(i.key), []byte(redacted))
}

// RedactHeader drops credential headers from h and scrubs the key from
// every remaining value.
func (i *Injector) RedactHeader(h http.Header) {
	StripHeaders(h)
	for name, values := range h {
		for j, v := range values {
			if strings.Contains(v, i.key) {
				values[j] = strings.ReplaceAll(v, i.key, redacted)
			}
		}
		h[name] = values
	}
}

// StripHeaders removes both credential headers from h.
func StripHeaders(h http.Header) {
	h.Del(AdminHeader)
	h.Del(APIHeader)
}
