// Package dispatch owns the ordered rule table that assigns every request
// to exactly one handler.
package dispatch

import "fmt"

// Kind is the handler a rule selects.
type Kind int

const (
	KindRedirect Kind = iota
	KindAdminProxy
	KindAPIProxy
	KindFallthrough
)

func (k Kind) String() string {
	switch k {
	case KindRedirect:
		return "redirect"
	case KindAdminProxy:
		return "admin-proxy"
	case KindAPIProxy:
		return "api-proxy"
	case KindFallthrough:
		return "app"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AdminIndex is where requests for the admin root are sent.
const AdminIndex = "/admin/index.html"

// AdminPrefixes are served by the CMS itself and authenticated with its
// own session cookie.
var AdminPrefixes = []string{
	"/admin",
	"/theme",
	"/api/admin",
	"/images",
	"/upload",
	"/rss.xml",
	"/sitemap.xml",
	"/sitemap.html",
}

// Rule pairs a matcher with the handler kind it selects.
type Rule struct {
	Name     string
	Matcher  Matcher
	Kind     Kind
	Location string // redirect target, KindRedirect only
}

// Table is an ordered rule list; the first matching rule wins.
type Table struct {
	rules []Rule
}

// NewTable copies rules into a table. The last rule should match every
// path; Match falls back to KindFallthrough otherwise.
func NewTable(rules ...Rule) Table {
	return Table{rules: append([]Rule(nil), rules...)}
}

// DefaultTable returns the gateway's fixed routing table.
func DefaultTable() Table {
	return NewTable(
		Rule{Name: "admin-root", Matcher: MustRegexMatcher(`^/admin/?$`), Kind: KindRedirect, Location: AdminIndex},
		Rule{Name: "admin-static", Matcher: NewPrefixMatcher(AdminPrefixes...), Kind: KindAdminProxy},
		Rule{Name: "api", Matcher: NewPrefixMatcher("/api"), Kind: KindAPIProxy},
		Rule{Name: "app", Matcher: NewAnyMatcher(), Kind: KindFallthrough},
	)
}

var fallthroughRule = Rule{Name: "app", Matcher: NewAnyMatcher(), Kind: KindFallthrough}

// Match returns the first rule whose matcher accepts path.
func (t Table) Match(path string) Rule {
	for _, r := range t.rules {
		if r.Matcher.Match(path) {
			return r
		}
	}
	return fallthroughRule
}

// Rules returns a copy of the rules in evaluation order.
func (t Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}
