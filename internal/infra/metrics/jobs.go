package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, pendingExpiredTotal) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduled job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // 'ok', 'failed'
	)

	pendingExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_expired_total",
			Help: "Pending transactions moved to failed by the expiry job.",
		},
	)
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func AddPendingExpired(n int64) {
	pendingExpiredTotal.Add(float64(n))
}
