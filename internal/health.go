package internal

import (
	"net/http"
	"sync/atomic"
)

// readiness reports ready once the initial scan has finished.
type readiness struct {
	done atomic.Bool
}

func (r *readiness) set() { r.done.Store(true) }

func (r *readiness) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !r.done.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"scanning"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
