package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateFetchTotal) }

var rateFetchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_fetch_total",
		Help: "Exchange rate lookups by pair and result (ok/error).",
	},
	[]string{"pair", "result"},
)

func IncRateFetch(pair, result string) {
	rateFetchTotal.WithLabelValues(norm(pair), norm(result)).Inc()
}
