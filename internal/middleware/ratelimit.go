package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ulule/limiter/v3"
	mstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const msgRateLimited = "Too many requests. Please try again later."

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Rate in ulule's formatted notation: "<limit>-<period>", with period
	// S, M, H or D. "20-M" allows 20 requests per minute per client.
	Rate string

	// TrustForwardHeader keys clients by X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that sets them.
	TrustForwardHeader bool

	// Prefix separates the counters of independent limiters sharing a store.
	Prefix string
}

// RateLimit limits requests per client IP with an in-memory store. Over
// the limit the client gets 429 with the standard error body and the
// X-RateLimit-* headers set by the limiter.
//
// The memory store is per process. Running several replicas multiplies the
// effective limit by the replica count.
func RateLimit(cfg RateLimitConfig, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("middleware: parsing rate %q: %w", cfg.Rate, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: 5 * time.Minute,
	})

	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(cfg.TrustForwardHeader))

	mw := mstdlib.NewMiddleware(instance,
		mstdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit reached",
				slog.String("path", r.URL.Path),
				slog.String("ip", instance.GetIP(r).String()),
			)
			writeError(w, http.StatusTooManyRequests, msgRateLimited)
		}),
		mstdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limiter failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Server error")
		}),
	)
	return mw.Handler, nil
}

// writeError writes the {"success": false, "error": ...} body the API uses
// for every failure.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
