package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutSessionsTotal,
		tokensIssuedTotal,
		webhookEventsTotal,
	)
}

var (
	// outcome: created|rejected|error
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout session creations by plan and outcome.",
		},
		[]string{"plan", "outcome"},
	)

	// trigger: webhook|poll|auto
	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Access tokens issued by plan and triggering path.",
		},
		[]string{"plan", "trigger"},
	)

	// outcome: processed|ignored|duplicate|bad_signature|error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Inbound payment webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func IncCheckoutSession(plan, outcome string) {
	checkoutSessionsTotal.WithLabelValues(norm(plan), norm(outcome)).Inc()
}

func IncTokenIssued(plan, trigger string) {
	tokensIssuedTotal.WithLabelValues(norm(plan), norm(trigger)).Inc()
}

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}
