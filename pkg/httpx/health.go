package httpx

import (
	"net/http"
	"sync/atomic"
)

const (
	HealthPath = "/healthz"
	ReadyPath  = "/readyz"
)

// Health answers liveness and readiness probes ahead of routing.
// Readiness fails once the server starts draining for shutdown.
type Health struct {
	draining atomic.Bool
}

// NewHealth creates a ready Health.
func NewHealth() *Health { return &Health{} }

// SetDraining marks the server as shutting down.
func (h *Health) SetDraining() { h.draining.Store(true) }

// Draining reports whether SetDraining was called.
func (h *Health) Draining() bool { return h.draining.Load() }

// Wrap serves the probe paths and passes everything else to next.
func (h *Health) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case HealthPath:
			writeProbe(w, http.StatusOK, "OK")
		case ReadyPath:
			if h.Draining() {
				writeProbe(w, http.StatusServiceUnavailable, "DRAINING")
				return
			}
			writeProbe(w, http.StatusOK, "READY")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
