package server

import (
	"net/http"

	"github.com/cryguy/winter/internal/metrics"
	"github.com/google/uuid"
)

// RequestIDHeader is assigned to every request that arrives without one
// and echoed on the response.
const RequestIDHeader = "X-Request-Id"

// RequestID makes sure every request carries an ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// Chain wraps next in the transport middleware: metrics outermost, then
// request IDs, then optional compression.
func Chain(next http.Handler, m *metrics.Metrics, compress bool) http.Handler {
	h := next
	if compress {
		h = Compress(h)
	}
	h = RequestID(h)
	return m.Middleware(h)
}
