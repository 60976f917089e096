package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		webhooksTotal,
		settlementsTotal,
		provisionFailuresTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment attempts by rail and status (initiated/paid/failed).",
		},
		[]string{"rail", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of settled payments, labeled by rail.",
		},
		[]string{"rail"},
	)

	// result: ok|bad_signature|bad_payload|ignored|error
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Inbound provider webhooks by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// outcome: settled|duplicate|provision_failed|invalid|error
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	provisionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_provision_failures_total",
			Help: "Failed panel provisioning calls by host.",
		},
		[]string{"host"},
	)
)

func IncPayment(rail, status string) {
	paymentsTotal.WithLabelValues(norm(rail), norm(status)).Inc()
}

func AddPaymentRevenue(rail string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	paymentsRevenueTotal.WithLabelValues(norm(rail)).Add(f)
}

func IncWebhook(provider, result string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func IncSettlement(outcome string) {
	settlementsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncProvisionFailure(host string) {
	provisionFailuresTotal.WithLabelValues(norm(host)).Inc()
}
