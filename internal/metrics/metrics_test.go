package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitDisabledReturnsNoop(t *testing.T) {
	recorder := Init(false)
	_, ok := recorder.(*NoopMetrics)
	assert.True(t, ok)
}

func TestInitEnabledReturnsSingleton(t *testing.T) {
	first := Init(true)
	second := Init(true)
	assert.Same(t, first, second)
}

func TestNoopMetricsDoesNotPanic(t *testing.T) {
	n := NewNoopMetrics()
	n.RecordTokenIssued("access", "client_credentials", time.Millisecond)
	n.RecordTokenRevoked("access", "client_request")
	n.RecordTokenRefresh(true)
	n.RecordAuthorizationCodeIssued(true)
	n.RecordAuthorizationCodeExchange("success")
	n.RecordIntrospection("active", time.Millisecond)
	n.SetActiveTokensCount(3)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unknown", normalizePath(""))
	assert.Equal(t, "/oauth/token", normalizePath("/oauth/token"))
}
