// Package upstream describes the single CMS the gateway fronts.
package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

// MinRecommendedKeyLength is the access key length below which response
// redaction is likely to hit bytes that are not the key.
const MinRecommendedKeyLength = 16

// ConfigurationError reports an invalid upstream setting detected at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid upstream %s: %s", e.Field, e.Reason)
}

// Target is the CMS base URL and the shared access key. It is immutable:
// every accessor returns a copy.
type Target struct {
	base      url.URL
	accessKey string
}

// NewTarget validates rawURL and accessKey. Any trailing slash on the base
// path is dropped so that base+path joins cleanly.
func NewTarget(rawURL, accessKey string) (*Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, &ConfigurationError{Field: "url", Reason: "must not be empty"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ConfigurationError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigurationError{Field: "url", Reason: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{Field: "url", Reason: "host is missing"}
	}
	if u.User != nil {
		return nil, &ConfigurationError{Field: "url", Reason: "must not embed user info"}
	}
	if accessKey == "" {
		return nil, &ConfigurationError{Field: "access_key", Reason: "must not be empty"}
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return &Target{base: *u, accessKey: accessKey}, nil
}

// URL returns a fresh copy of the base URL.
func (t *Target) URL() *url.URL {
	u := t.base
	return &u
}

// Scheme is "http" or "https".
func (t *Target) Scheme() string { return t.base.Scheme }

// Host returns host[:port] as configured.
func (t *Target) Host() string { return t.base.Host }

// Origin returns scheme://host[:port].
func (t *Target) Origin() string { return t.base.Scheme + "://" + t.base.Host }

// AccessKey returns the shared secret. Callers must not log or echo it.
func (t *Target) AccessKey() string { return t.accessKey }

// WeakKey reports whether the key is shorter than MinRecommendedKeyLength.
// Such keys are accepted; redacting them may alter unrelated response bytes.
func (t *Target) WeakKey() bool { return len(t.accessKey) < MinRecommendedKeyLength }

// Resolve joins the base URL with an inbound escaped path and raw query.
// The escaping is kept as received, so "a%2Fb" stays one segment.
func (t *Target) Resolve(escapedPath, rawQuery string) *url.URL {
	u := t.base
	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		decoded = escapedPath
	}
	u.Path = t.base.Path + decoded
	u.RawPath = t.base.EscapedPath() + escapedPath
	u.RawQuery = rawQuery
	return &u
}

// String omits the access key.
func (t *Target) String() string {
	return t.base.String()
}
