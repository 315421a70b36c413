// Package metrics records authentication and HTTP metrics.
//
// Components depend on the Recorder interface. With metrics enabled it is
// backed by Prometheus collectors registered on an injected registry; with
// metrics disabled a Noop recorder is used and nothing is allocated.
package metrics

import "time"

// Result labels shared by the counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"

	// Token validation results.
	TokenValid       = "valid"
	TokenInvalid     = "invalid"
	TokenExpired     = "expired"
	TokenMissing     = "missing"
	TokenUnknownUser = "unknown_user"
)

// Recorder is implemented by *Metrics and *Noop.
type Recorder interface {
	// RecordRegistration counts register attempts by result
	// (success, conflict, invalid, error).
	RecordRegistration(result string)

	// RecordLogin counts password logins by the account's provider.
	RecordLogin(provider string, success bool)

	// RecordOAuthCallback counts OAuth callbacks by provider and linker
	// outcome (authenticated, linked, created) or failure reason.
	RecordOAuthCallback(provider, outcome string)

	// RecordTokenValidation counts Session Gate decisions.
	RecordTokenValidation(result string)

	// RecordHTTPRequest records one served request. route is the matched
	// route pattern, not the raw path.
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}
