package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mAllowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_ratelimit_allowed_total",
		Help: "Requests admitted by the sliding window.",
	})
	mDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_ratelimit_denied_total",
		Help: "Requests denied because the window was full.",
	})
	mExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdb_ratelimit_cas_exhausted_total",
		Help: "Requests denied fail-closed after CAS retries ran out.",
	})
)
