package dispatch

import (
	"net/http"
	"strings"

	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// Observer is told which rule handled each request.
type Observer interface {
	ObserveDispatch(rule string)
}

// Handlers are the targets of the non-redirect rule kinds.
type Handlers struct {
	Admin http.Handler // Admin/static reverse proxy
	API   http.Handler // CMS API proxy chain
	App   http.Handler // Local app server
}

// Dispatcher routes each request through the rule table.
type Dispatcher struct {
	table    Table
	handlers Handlers
	observer Observer
	logger   logging.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithObserver registers a dispatch observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a dispatcher. Every handler in h must be non-nil.
func New(table Table, h Handlers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:    table,
		handlers: h,
		logger:   logging.NewSimpleLogger("dispatch", logging.LevelInfo, false),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide returns the rule that owns path.
func (d *Dispatcher) Decide(path string) Rule {
	return d.table.Match(path)
}

// Table returns the routing table.
func (d *Dispatcher) Table() Table {
	return d.table
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if !validPath(path) {
		d.logger.Debug("Rejecting malformed path", "path", path)
		httperr.WriteError(w, httperr.ErrBadRequest)
		return
	}

	rule := d.Decide(path)
	if d.observer != nil {
		d.observer.ObserveDispatch(rule.Name)
	}
	d.logger.Debug("Dispatching request", "method", r.Method, "path", path, "rule", rule.Name)

	switch rule.Kind {
	case KindRedirect:
		http.Redirect(w, r, rule.Location, http.StatusFound)
	case KindAdminProxy:
		d.handlers.Admin.ServeHTTP(w, r)
	case KindAPIProxy:
		d.handlers.API.ServeHTTP(w, r)
	default:
		d.handlers.App.ServeHTTP(w, r)
	}
}

// validPath rejects relative paths and dot segments, which upstreams may
// resolve into a different path space than the one the table matched.
func validPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
