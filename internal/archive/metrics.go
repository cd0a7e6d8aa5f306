package archive

import "github.com/prometheus/client_golang/prometheus"

var (
	archiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_archive_runs_total",
			Help: "Total number of history archive runs by status.",
		},
		[]string{"status"},
	)
	archiveRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlchat_archive_rows_total",
			Help: "Total number of query history rows archived and deleted.",
		},
	)
	archiveBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlchat_archive_bytes_total",
			Help: "Total parquet bytes written to the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		archiveRunsTotal,
		archiveRowsTotal,
		archiveBytesTotal,
	)
}
