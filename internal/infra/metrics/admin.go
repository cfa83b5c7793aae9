package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminRetryTotal) }

var adminRetryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "export_admin_retry_total",
		Help: "Administrative export retries, labeled by result.",
	},
	[]string{"result"}, // 'accepted', 'refused', 'not_found'
)

func IncAdminRetry(result string) {
	adminRetryTotal.WithLabelValues(norm(result)).Inc()
}
