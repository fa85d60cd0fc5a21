package httpx

import (
	"net/http"
	"time"

	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// RequestLogger logs a start and an end line for every request.
func RequestLogger(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger.Debug("start", "method", r.Method, "path", r.URL.Path)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			args := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.written,
				"duration", time.Since(start).Round(time.Microsecond),
			}
			if rec.Status() >= http.StatusInternalServerError {
				logger.Warn("end", args...)
				return
			}
			logger.Info("end", args...)
		})
	}
}
