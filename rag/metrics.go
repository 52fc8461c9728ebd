package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal counts index builds. Labels: result (ok, error)
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Index builds by outcome",
		},
		[]string{"result"},
	)

	ReuseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "index",
			Name:      "reuse_total",
			Help:      "Times a persisted index was validated and reused without a build",
		},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "legalrag",
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Time spent building the index",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	Passages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legalrag",
			Subsystem: "index",
			Name:      "passages",
			Help:      "Passages held by the ready index",
		},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "legalrag",
			Subsystem: "retriever",
			Name:      "duration_seconds",
			Help:      "Query embedding plus vector search latency",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
