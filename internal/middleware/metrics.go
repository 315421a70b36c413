package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/resumelens/resume-analyzer/internal/metrics"
)

// Metrics records a count and a latency observation per request.
//
// WHY THE ROUTE PATTERN?
// Labelling by raw path would create one time series per distinct URL.
// chi fills in the matched pattern ("/api/auth/{provider}/callback") once
// routing is done, so it is read after next returns. Unmatched requests
// are recorded under "unknown".
func Metrics(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			rec.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
