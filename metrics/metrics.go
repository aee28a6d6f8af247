package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var ArchivesStarted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_archives_started_total",
})
var ArchivesFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_archives_finished_total",
}, []string{"outcome"})
var MediaFetched = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_archive_files_fetched_total",
})
var MediaFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_archive_fetch_failures_total",
}, []string{"reason"})
var BytesFetched = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_archive_bytes_fetched_total",
})
var ArchiveBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "media_archive_size_bytes",
	Buckets: prometheus.ExponentialBuckets(1048576, 4, 8), // 1mb .. 16gb
})
var PhaseSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "media_archive_phase_seconds",
	Buckets: prometheus.DefBuckets,
}, []string{"phase"})

func init() {
	prometheus.MustRegister(ArchivesStarted)
	prometheus.MustRegister(ArchivesFinished)
	prometheus.MustRegister(MediaFetched)
	prometheus.MustRegister(MediaFetchFailures)
	prometheus.MustRegister(BytesFetched)
	prometheus.MustRegister(ArchiveBytes)
	prometheus.MustRegister(PhaseSeconds)
}
