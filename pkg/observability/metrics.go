package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthMetrics holds Prometheus metrics for the authentication subsystem
type AuthMetrics struct {
	LoginsTotal          *prometheus.CounterVec
	LoginFailuresTotal   *prometheus.CounterVec
	RequestsRejected     *prometheus.CounterVec
	SessionsCreatedTotal prometheus.Counter
	SessionsSweptTotal   prometheus.Counter
	UsersProvisioned     prometheus.Counter

	registry *prometheus.Registry
}

// NewAuthMetrics creates and registers authentication metrics on a fresh
// registry. activeSessions is sampled on scrape.
func NewAuthMetrics(activeSessions func() float64) *AuthMetrics {
	registry := prometheus.NewRegistry()

	m := &AuthMetrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_logins_total",
				Help: "Successful OAuth logins by provider",
			},
			[]string{"provider"},
		),
		LoginFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_login_failures_total",
				Help: "Failed OAuth logins by provider and failure stage",
			},
			[]string{"provider", "stage"},
		),
		RequestsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_requests_rejected_total",
				Help: "Requests rejected by the auth gateway, by response kind",
			},
			[]string{"kind"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_sessions_created_total",
				Help: "Sessions created",
			},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_sessions_swept_total",
				Help: "Expired sessions removed by sweeps",
			},
		),
		UsersProvisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowdeck_auth_users_provisioned_total",
				Help: "Users created on first OAuth login",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.LoginFailuresTotal,
		m.RequestsRejected,
		m.SessionsCreatedTotal,
		m.SessionsSweptTotal,
		m.UsersProvisioned,
	)

	if activeSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "flowdeck_auth_active_sessions",
				Help: "Sessions currently active",
			},
			activeSessions,
		))
	}

	return m
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *AuthMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
