// Package obs registers the Prometheus metrics for the authorization and
// session core.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization guard decisions by outcome.",
		},
		[]string{"outcome"},
	)

	policyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_policy_failures_total",
			Help: "Policy decision service failures (denied for safety).",
		},
	)

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Access token validations by result.",
		},
		[]string{"result"},
	)

	entitlementFetchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entitlement_fetch_duration_seconds",
			Help:    "Identity authority entitlement fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(authzDecisions, policyFailures, tokenValidations, entitlementFetchSeconds)
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthzDecision records one guard decision: "allow", "deny" or "error".
func AuthzDecision(outcome string) {
	authzDecisions.WithLabelValues(outcome).Inc()
}

// PolicyFailure records a policy service failure treated as a deny.
func PolicyFailure() {
	policyFailures.Inc()
}

// TokenValidation records one access-token validation: "valid", "expired",
// "invalid".
func TokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
}

// ObserveEntitlementFetch records one identity-authority fetch duration.
func ObserveEntitlementFetch(d time.Duration) {
	entitlementFetchSeconds.Observe(d.Seconds())
}
