package model

import "time"

// JobStatus is the lifecycle state of one diagnosis execution.
type JobStatus string

const (
	JobStatusInitializing   JobStatus = "INITIALIZING"
	JobStatusAIFetching     JobStatus = "AI_FETCHING"
	JobStatusAnalyzing      JobStatus = "ANALYZING"
	JobStatusCompleted      JobStatus = "COMPLETED"
	JobStatusPartialSuccess JobStatus = "PARTIAL_SUCCESS"
	JobStatusFailed         JobStatus = "FAILED"
	JobStatusTimeout        JobStatus = "TIMEOUT"
)

// Terminal reports whether no further transitions are possible and pollers
// should stop.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartialSuccess, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// JobEvent names the triggers that move a job between states.
type JobEvent string

const (
	EventSucceed         JobEvent = "succeed"
	EventFail            JobEvent = "fail"
	EventAllComplete     JobEvent = "all_complete"
	EventPartialComplete JobEvent = "partial_complete"
	EventAllFail         JobEvent = "all_fail"
	EventTimeout         JobEvent = "timeout"
	EventPartialSucceed  JobEvent = "partial_succeed"
)

// jobTransitions is the full legal transition table. Any (state,event) pair
// absent here is rejected without mutating state.
var jobTransitions = map[JobStatus]map[JobEvent]JobStatus{
	JobStatusInitializing: {
		EventSucceed: JobStatusAIFetching,
		EventFail:    JobStatusFailed,
	},
	JobStatusAIFetching: {
		EventAllComplete:     JobStatusAnalyzing,
		EventPartialComplete: JobStatusAnalyzing,
		EventAllFail:         JobStatusFailed,
		EventTimeout:         JobStatusTimeout,
	},
	JobStatusAnalyzing: {
		EventSucceed:        JobStatusCompleted,
		EventPartialSucceed: JobStatusPartialSuccess,
		EventFail:           JobStatusFailed,
	},
}

// NextStatus resolves the transition table. ok is false for any illegal pair.
func NextStatus(from JobStatus, event JobEvent) (JobStatus, bool) {
	next, ok := jobTransitions[from][event]
	return next, ok
}

// JobState is the mutable per-execution record; exactly one exists per
// JobSpec and it changes only through state-machine transitions.
type JobState struct {
	ExecutionID string
	ReportID    string
	UserID      string
	BrandName   string
	Status      JobStatus
	Stage       string
	Progress    float64 // 0..100
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewJobState(executionID string) *JobState {
	now := time.Now()
	return &JobState{
		ExecutionID: executionID,
		Status:      JobStatusInitializing,
		Stage:       "created",
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
