package dispatch

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether a request path belongs to a rule.
type Matcher interface {
	Match(path string) bool
	String() string
}

// ExactMatcher matches one path exactly.
type ExactMatcher struct {
	path string
}

func NewExactMatcher(path string) *ExactMatcher {
	return &ExactMatcher{path: path}
}

func (m *ExactMatcher) Match(path string) bool { return path == m.path }
func (m *ExactMatcher) String() string         { return "exact " + m.path }

// PrefixMatcher matches when the path starts with any of its prefixes.
// Prefixes are plain string prefixes: "/api" also matches "/apis".
type PrefixMatcher struct {
	prefixes []string
}

func NewPrefixMatcher(prefixes ...string) *PrefixMatcher {
	return &PrefixMatcher{prefixes: append([]string(nil), prefixes...)}
}

func (m *PrefixMatcher) Match(path string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the configured prefixes.
func (m *PrefixMatcher) Prefixes() []string {
	return append([]string(nil), m.prefixes...)
}

func (m *PrefixMatcher) String() string { return "prefix " + strings.Join(m.prefixes, " ") }

// RegexMatcher matches with a regular expression.
type RegexMatcher struct {
	pattern *regexp.Regexp
}

func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMatcher{pattern: re}, nil
}

// MustRegexMatcher panics on an invalid pattern; used for the built-in table.
func MustRegexMatcher(pattern string) *RegexMatcher {
	m, err := NewRegexMatcher(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *RegexMatcher) Match(path string) bool { return m.pattern.MatchString(path) }
func (m *RegexMatcher) String() string         { return "regex " + m.pattern.String() }

// GlobMatcher matches minimatch-style patterns with '/' as separator, so
// "*" stays within one segment and "**" crosses segments.
type GlobMatcher struct {
	raw  string
	glob glob.Glob
}

func NewGlobMatcher(pattern string) (*GlobMatcher, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	return &GlobMatcher{raw: pattern, glob: g}, nil
}

func (m *GlobMatcher) Match(path string) bool { return m.glob.Match(path) }
func (m *GlobMatcher) String() string         { return "glob " + m.raw }

// AnyMatcher matches every path.
type AnyMatcher struct{}

func NewAnyMatcher() *AnyMatcher { return &AnyMatcher{} }

func (m *AnyMatcher) Match(string) bool { return true }
func (m *AnyMatcher) String() string    { return "any" }
