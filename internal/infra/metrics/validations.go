package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		validationsTotal,
		validationDuration,
		redeemsTotal,
	)
}

var (
	// Verdicts grouped by result and which store answered.
	// result: valid|invalid
	// source: manual|auto|stripe|none|error
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_validations_total",
			Help: "Membership validation verdicts by result and source.",
		},
		[]string{"result", "source"},
	)

	validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membership_validation_duration_seconds",
			Help:    "Duration of validation handlers in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// outcome: ok|inactive|expired|usage_exceeded|not_found|error
	redeemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_redeems_total",
			Help: "Token redeem attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func ObserveValidation(valid bool, source string, seconds float64) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	validationsTotal.WithLabelValues(result, norm(source)).Inc()
	validationDuration.WithLabelValues(norm(source)).Observe(seconds)
}

func IncRedeem(outcome string) {
	redeemsTotal.WithLabelValues(norm(outcome)).Inc()
}
