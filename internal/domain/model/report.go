package model

import "time"

// AggregatedSnapshot holds the running diagnosis numbers over the results
// seen so far. It is recomputed on every incoming result and is safe to
// render mid-flight.
type AggregatedSnapshot struct {
	ExecutionID string `json:"execution_id"`

	TotalResponses int            `json:"total_responses"`
	BrandResponses map[string]int `json:"brand_responses"`
	BrandSuccesses map[string]int `json:"brand_successes"`

	ShareOfVoice float64 `json:"share_of_voice"` // main brand responses / total
	AvgSentiment float64 `json:"avg_sentiment"`  // 0..1, over successes
	AvgRank      float64 `json:"avg_rank"`       // over mentioned responses only
	MentionedN   int     `json:"mentioned_count"`

	ModelSuccessRate    map[string]float64 `json:"model_success_rate"`
	QuestionMentionRate map[string]float64 `json:"question_mention_rate"`

	HealthScore float64 `json:"health_score"` // 0..100
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReportHeader is the client-facing identity block of a report.
type ReportHeader struct {
	ExecutionID string    `json:"execution_id"`
	ReportID    string    `json:"report_id"`
	BrandName   string    `json:"brand_name"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Stage       string    `json:"stage"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportAnalysis carries the distributions computed over available data.
type ReportAnalysis struct {
	BrandDistribution     map[string]float64 `json:"brand_distribution"`
	SentimentDistribution map[string]float64 `json:"sentiment_distribution"`
	Keywords              []string           `json:"keywords"`
}

// ReportMeta marks how complete and trustworthy the report is.
type ReportMeta struct {
	IsStub           bool    `json:"is_stub"`
	DataCompleteness float64 `json:"data_completeness"` // percent
	HasData          bool    `json:"has_data"`
	SuccessfulCount  int     `json:"successful_count"`
}

// StubReport is a read-only projection over job state, the aggregated
// snapshot and the dead-letter queue. It is always renderable, even for
// failed or unknown executions, and is never itself a source of truth.
type StubReport struct {
	Report          ReportHeader    `json:"report"`
	Results         []*AICallResult `json:"results"`
	Analysis        ReportAnalysis  `json:"analysis"`
	Meta            ReportMeta      `json:"meta"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RetrySuggestion string          `json:"retry_suggestion,omitempty"`
	NextSteps       []string        `json:"next_steps,omitempty"`
	PriorExecutions []string        `json:"prior_executions,omitempty"`
}
