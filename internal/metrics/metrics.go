package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"route", "method"},
	)

	ChatStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "chat_pipeline_stage_duration_seconds",
			Help: "Duration of each chat pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of LLM generate calls by outcome",
		},
		[]string{"model", "outcome"},
	)

	ProfileVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_verifications_total",
			Help: "Total number of LLM profile verifications by outcome",
		},
		[]string{"field", "outcome"},
	)

	CatalogCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog search cache hits",
		},
	)

	CatalogCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog search cache misses",
		},
	)
)
