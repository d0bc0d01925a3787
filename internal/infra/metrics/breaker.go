package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(breakerState) }

// 0 = closed, 1 = open, 2 = half_open
var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Per-model circuit breaker state (0 closed, 1 open, 2 half_open).",
	},
	[]string{"model"},
)

func SetBreakerState(model, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half_open":
		v = 2
	}
	breakerState.WithLabelValues(norm(model)).Set(v)
}
