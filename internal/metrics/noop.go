package metrics

import "time"

// Noop discards everything. Used when METRICS_ENABLED=false and in tests.
type Noop struct{}

var _ Recorder = (*Noop)(nil)

// NewNoop returns a recorder that does nothing.
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) RecordRegistration(string)                            {}
func (*Noop) RecordLogin(string, bool)                             {}
func (*Noop) RecordOAuthCallback(string, string)                   {}
func (*Noop) RecordTokenValidation(string)                         {}
func (*Noop) RecordHTTPRequest(string, string, int, time.Duration) {}
