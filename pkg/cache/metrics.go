package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks collections replayed from disk
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghcc_cache_hits_total",
			Help: "Total number of collections replayed from the disk cache",
		},
	)

	// CacheMisses tracks collections fetched from GitHub
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghcc_cache_misses_total",
			Help: "Total number of collections fetched from GitHub",
		},
	)

	// RecordsWritten tracks lines appended to cache files
	RecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghcc_cache_records_written_total",
			Help: "Total number of records appended to cache files",
		},
	)

	// RecordsReplayed tracks lines read back from cache files
	RecordsReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghcc_cache_records_replayed_total",
			Help: "Total number of records replayed from cache files",
		},
	)

	// IncompleteEntries tracks cache files ignored for lack of a completion mark
	IncompleteEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghcc_cache_incomplete_total",
			Help: "Total number of cache files refetched because they were never marked complete",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghcc_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "lookup", "read", "write", "ledger"
	)
)
