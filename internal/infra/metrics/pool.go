package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, exportWorkersBusy) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_conns",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // 'total', 'idle', 'acquired'
	)

	exportWorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "export_workers_busy",
			Help: "Export attempts currently running inside one processor invocation.",
		},
	)
)

func SetDBPoolConns(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

func WorkerBusy() { exportWorkersBusy.Inc() }
func WorkerIdle() { exportWorkersBusy.Dec() }
