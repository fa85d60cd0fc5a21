package proxy

import (
	"net/http"
	"time"
)

// Recorder observes completed upstream calls.
type Recorder interface {
	ObserveUpstream(proxy string, status int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpstream(string, int, time.Duration) {}

// statusWriter captures the status written by a ReverseProxy. Unwrap lets
// http.ResponseController reach Flush and Hijack on the real writer.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
