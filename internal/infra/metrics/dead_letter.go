package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(deadLettersTotal, deadLettersSwept) }

var deadLettersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dead_letters_total",
		Help: "WorkItems routed to the dead letter queue, by error kind.",
	},
	[]string{"kind"},
)

var deadLettersSwept = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dead_letters_swept_total",
		Help: "Resolved dead letters removed by the retention sweep.",
	},
)

func IncDeadLetter(kind string) {
	deadLettersTotal.WithLabelValues(norm(kind)).Inc()
}

func AddDeadLettersSwept(n int64) {
	deadLettersSwept.Add(float64(n))
}
