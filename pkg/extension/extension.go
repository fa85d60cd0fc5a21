// Package extension hosts gateway-local endpoints under /api. It runs as
// the second step of the API chain, after the CMS has had its turn.
package extension

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/ideamans/cmsgate/pkg/dispatch"
)

// HandlerFunc answers a local endpoint.
type HandlerFunc func(r *http.Request) (*dispatch.Response, error)

type routeKey struct {
	method string
	path   string
}

// Registry maps method+path to local handlers. It implements dispatch.Step.
type Registry struct {
	mu     sync.RWMutex
	routes map[routeKey]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[routeKey]HandlerFunc)}
}

// Register registers h for method and path. Registering GET also answers HEAD.
func (reg *Registry) Register(method, path string, h HandlerFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.routes[routeKey{method, path}] = h
}

// Handle implements dispatch.Step. Unknown paths return nil so the chain
// keeps looking; a known path with the wrong method gets 405.
func (reg *Registry) Handle(r *http.Request) (*dispatch.Response, error) {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}

	reg.mu.RLock()
	h, ok := reg.routes[routeKey{method, r.URL.Path}]
	var allowed []string
	if !ok {
		for k := range reg.routes {
			if k.path == r.URL.Path {
				allowed = append(allowed, k.method)
			}
		}
	}
	reg.mu.RUnlock()

	if ok {
		return h(r)
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	sort.Strings(allowed)
	resp := JSON(http.StatusMethodNotAllowed, map[string]interface{}{
		"error":  http.StatusText(http.StatusMethodNotAllowed),
		"status": http.StatusMethodNotAllowed,
	})
	for _, m := range allowed {
		resp.Header.Add("Allow", m)
	}
	return resp, nil
}

// Routes lists the registered endpoints as "METHOD path", sorted.
func (reg *Registry) Routes() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.routes))
	for k := range reg.routes {
		out = append(out, k.method+" "+k.path)
	}
	sort.Strings(out)
	return out
}

// JSON builds a JSON response. Values that fail to encode produce a 500.
func JSON(status int, v interface{}) *dispatch.Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error","status":500}`)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	return &dispatch.Response{Status: status, Header: h, Body: body}
}
