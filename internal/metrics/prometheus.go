package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_documents_processed_total",
			Help: "Documents that completed the ingestion pipeline",
		},
	)

	ProcessingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_processing_failures_total",
			Help: "Pipeline runs that ended in the failed state",
		},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finsight_processing_duration_seconds",
			Help:    "End-to-end pipeline duration per document",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_search_total",
			Help: "Search requests by retrieval tier",
		},
		[]string{"tier"},
	)

	AskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_ask_total",
			Help: "Question-answering requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	AskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finsight_ask_duration_seconds",
			Help:    "Question-answering latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_llm_tokens_used_total",
			Help: "Generation-service tokens consumed",
		},
		[]string{"type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_cache_hits_total",
			Help: "Cache hits by cache type",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_cache_misses_total",
			Help: "Cache misses by cache type",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(ProcessingFailures)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(AskTotal)
	prometheus.MustRegister(AskDuration)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
