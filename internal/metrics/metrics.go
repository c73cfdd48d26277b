// Package metrics holds the prometheus collectors of droiddb.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for result labels.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for access resolution, file transfer and snapshot extraction.
var (
	RootProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "droiddb_root_probes_total",
		Help: "Cumulative number of root probes, by result.",
	}, []string{"result"})
	TransfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "droiddb_transfers_total",
		Help: "Cumulative number of single-file transfer attempts, by technique and result.",
	}, []string{"technique", "result"})
	TransferBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "droiddb_transfer_bytes_total",
		Help: "Cumulative number of bytes written to local snapshot files, by technique.",
	}, []string{"technique"})
	ExtractionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "droiddb_extractions_total",
		Help: "Cumulative number of snapshot extractions, by result.",
	}, []string{"result"})
	ExtractionDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "droiddb_extraction_duration_seconds",
		Help:    "Wall time of snapshot extractions.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

// Collectors returns all collectors of this package, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RootProbesTotal,
		TransfersTotal,
		TransferBytesTotal,
		ExtractionsTotal,
		ExtractionDurationSeconds,
	}
}
