package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mGets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_store_gets_total",
		Help: "Point reads served by the store.",
	})
	mScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_store_scans_total",
		Help: "Prefix scans served by the store.",
	})
	mBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_store_batches_total",
		Help: "Atomic batches applied (including single-key writes).",
	})
	mConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_store_conflicts_total",
		Help: "Atomic batches rejected because a precondition failed.",
	})
	mExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_store_expired_total",
		Help: "TTL-expired records reclaimed lazily on read.",
	})
)
