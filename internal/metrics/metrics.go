package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Token operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRevoked(tokenType, reason string)
	RecordTokenRefresh(success bool)

	// Authorization code flow
	RecordAuthorizationCodeIssued(success bool)
	RecordAuthorizationCodeExchange(result string)

	// Introspection
	RecordIntrospection(result string, duration time.Duration)

	// Gauge setters (for periodic updates)
	SetActiveTokensCount(count int64)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensActive            prometheus.Gauge
	TokenGenerationDuration prometheus.Histogram

	// Authorization code metrics
	AuthCodesIssuedTotal   *prometheus.CounterVec
	AuthCodeExchangesTotal *prometheus.CounterVec

	// Introspection metrics
	IntrospectionTotal    *prometheus.CounterVec
	IntrospectionDuration prometheus.Histogram

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// If enabled=true, returns Prometheus-based Metrics.
// If enabled=false, returns NoopMetrics (zero overhead).
// Uses sync.Once to ensure Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{
				"token_type",
				"grant_type",
			}, // token_type: access, refresh; grant_type: authorization_code, refresh_token, client_credentials
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // client_request, rotation
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		TokensActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_tokens_active",
				Help: "Current number of active tokens",
			},
		),
		TokenGenerationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to generate tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		AuthCodesIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_codes_issued_total",
				Help: "Total number of authorization codes issued",
			},
			[]string{"result"}, // success, error
		),
		AuthCodeExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_code_exchanges_total",
				Help: "Total number of authorization code exchange attempts",
			},
			[]string{"result"}, // success, expired, used, invalid
		),

		IntrospectionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_introspection_total",
				Help: "Total number of token introspection requests",
			},
			[]string{"result"}, // active, inactive
		),
		IntrospectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_introspection_duration_seconds",
				Help:    "Time taken to introspect tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokensActive.Inc()
	m.TokenGenerationDuration.Observe(generationTime.Seconds())
}

// RecordTokenRevoked records token revocation
func (m *Metrics) RecordTokenRevoked(tokenType, reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
	m.TokensActive.Dec()
}

// RecordTokenRefresh records a token refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordAuthorizationCodeIssued records authorization code generation
func (m *Metrics) RecordAuthorizationCodeIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.AuthCodesIssuedTotal.WithLabelValues(result).Inc()
}

// RecordAuthorizationCodeExchange records a code exchange attempt
func (m *Metrics) RecordAuthorizationCodeExchange(result string) {
	// result: success, expired, used, invalid
	m.AuthCodeExchangesTotal.WithLabelValues(result).Inc()
}

// RecordIntrospection records a token introspection request
func (m *Metrics) RecordIntrospection(result string, duration time.Duration) {
	// result: active, inactive
	m.IntrospectionTotal.WithLabelValues(result).Inc()
	m.IntrospectionDuration.Observe(duration.Seconds())
}

// SetActiveTokensCount sets the current count of active tokens (for periodic updates)
func (m *Metrics) SetActiveTokensCount(count int64) {
	m.TokensActive.Set(float64(count))
}
