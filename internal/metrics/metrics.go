package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors for the API.
type Metrics struct {
	// Authentication
	RegistrationsTotal   *prometheus.CounterVec
	LoginsTotal          *prometheus.CounterVec
	OAuthCallbacksTotal  *prometheus.CounterVec
	TokenValidationTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RegistrationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_registrations_total",
				Help: "Total number of local registration attempts",
			},
			[]string{"result"}, // success, conflict, invalid, error
		),
		LoginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of password login attempts",
			},
			[]string{"provider", "result"},
		),
		OAuthCallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_oauth_callback_total",
				Help: "Total number of OAuth callbacks",
			},
			[]string{"provider", "outcome"}, // authenticated, linked, created, state_mismatch, failed
		),
		TokenValidationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_token_validation_total",
				Help: "Total number of bearer token checks on protected routes",
			},
			[]string{"result"}, // valid, invalid, expired, missing, unknown_user
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) RecordRegistration(result string) {
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogin(provider string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	m.LoginsTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordOAuthCallback(provider, outcome string) {
	m.OAuthCallbacksTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
