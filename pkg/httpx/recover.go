package httpx

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/ideamans/cmsgate/pkg/shared/httperr"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

// Recover turns a panic in next into a 500 response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if err, ok := rv.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rv)
				}
				logger.Error("Panic while serving request", "path", r.URL.Path, "panic", rv, "stack", string(debug.Stack()))
				httperr.Write(w, http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
