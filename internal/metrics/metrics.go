// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mpsync"

var (
	// FetchTotal counts member page fetches by result ("ok", "status", "transport").
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Member page fetches by result.",
	}, []string{"result"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Member page fetch latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// LoadTotal counts loader outcomes ("saved", "invalid", "error").
	LoadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "load_total",
		Help:      "Member record loads by result.",
	}, []string{"result"})

	// ImportIDsTotal counts per-id batch outcomes.
	ImportIDsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_ids_total",
		Help:      "Member ids processed by import batches, by outcome.",
	}, []string{"outcome"})

	DuplicateClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicate_clusters",
		Help:      "Duplicate clusters found by the last grouping pass.",
	})

	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merges_total",
		Help:      "Source records merged into a target record.",
	})
)
