package audit

import "github.com/prometheus/client_golang/prometheus"

var (
	archiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_audit_archive_runs_total",
			Help: "Total number of audit archive runs by status.",
		},
		[]string{"status"},
	)
	archivedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopdesk_audit_records_archived_total",
			Help: "Total number of audit records written to object storage.",
		},
	)
	archiveBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopdesk_audit_archive_bytes_written_total",
			Help: "Total parquet bytes written by audit archive runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(archiveRunsTotal, archivedRecordsTotal, archiveBytesWritten)
}
