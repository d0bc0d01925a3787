package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(diagnosisJobsTotal, workItemsTotal, brandHealthScore) }

var diagnosisJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "diagnosis_jobs_total",
		Help: "Diagnosis jobs by terminal status.",
	},
	[]string{"status"}, // 'completed', 'partial_success', 'failed', 'timeout'
)

var workItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "diagnosis_work_items_total",
		Help: "WorkItem outcomes, labeled by fate.",
	},
	[]string{"fate"}, // 'success', 'dead_letter', 'orphaned'
)

var brandHealthScore = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "diagnosis_health_score",
		Help: "Latest aggregated brand health score (0-100) per main brand.",
	},
	[]string{"brand"},
)

func IncJob(status string) {
	diagnosisJobsTotal.WithLabelValues(norm(status)).Inc()
}

func SetHealthScore(brand string, score float64) {
	brandHealthScore.WithLabelValues(norm(brand)).Set(score)
}

func IncWorkItem(fate string) {
	workItemsTotal.WithLabelValues(norm(fate)).Inc()
}
