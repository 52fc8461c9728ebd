package embedder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts provider calls. Labels: model, result (ok, transient, fatal, canceled)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "embedder",
			Name:      "requests_total",
			Help:      "Embedding provider calls by outcome",
		},
		[]string{"model", "result"},
	)

	// TextsTotal counts texts sent for embedding.
	TextsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "embedder",
			Name:      "texts_total",
			Help:      "Texts sent to the embedding provider",
		},
		[]string{"model"},
	)
)
