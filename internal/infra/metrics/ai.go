package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiCallFailures,
		aiRetriesTotal,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		},
		[]string{"source", "success"},
	)

	aiCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_call_failures_total",
			Help: "Failed AI calls, labeled by source and error kind.",
		},
		[]string{"source", "kind"},
	)

	aiRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Retry attempts per model.",
		},
		[]string{"model"},
	)
)

// ObserveAICall records latency for one guarded call; kind is empty on success.
func ObserveAICall(source, kind string, elapsed time.Duration, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(source), strconv.FormatBool(success)).
		Observe(float64(elapsed.Milliseconds()))
	if !success {
		aiCallFailures.WithLabelValues(norm(source), norm(kind)).Inc()
	}
}

func IncRetry(model string) {
	aiRetriesTotal.WithLabelValues(norm(model)).Inc()
}
