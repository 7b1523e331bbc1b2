package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
) {
}

func (n *NoopMetrics) RecordTokenRevoked(tokenType, reason string) {}

func (n *NoopMetrics) RecordTokenRefresh(success bool) {}

func (n *NoopMetrics) RecordAuthorizationCodeIssued(success bool) {}

func (n *NoopMetrics) RecordAuthorizationCodeExchange(result string) {}

func (n *NoopMetrics) RecordIntrospection(result string, duration time.Duration) {}

func (n *NoopMetrics) SetActiveTokensCount(count int64) {}
