package model

import "testing"

func TestNextStatus_Table(t *testing.T) {
	t.Parallel()

	legal := []struct {
		from  JobStatus
		event JobEvent
		want  JobStatus
	}{
		{JobStatusInitializing, EventSucceed, JobStatusAIFetching},
		{JobStatusInitializing, EventFail, JobStatusFailed},
		{JobStatusAIFetching, EventAllComplete, JobStatusAnalyzing},
		{JobStatusAIFetching, EventPartialComplete, JobStatusAnalyzing},
		{JobStatusAIFetching, EventAllFail, JobStatusFailed},
		{JobStatusAIFetching, EventTimeout, JobStatusTimeout},
		{JobStatusAnalyzing, EventSucceed, JobStatusCompleted},
		{JobStatusAnalyzing, EventPartialSucceed, JobStatusPartialSuccess},
		{JobStatusAnalyzing, EventFail, JobStatusFailed},
	}
	for _, tc := range legal {
		next, ok := NextStatus(tc.from, tc.event)
		if !ok || next != tc.want {
			t.Fatalf("%s + %s: want (%s, true), got (%s, %v)", tc.from, tc.event, tc.want, next, ok)
		}
	}
}

func TestNextStatus_IllegalPairs(t *testing.T) {
	t.Parallel()

	illegal := []struct {
		from  JobStatus
		event JobEvent
	}{
		{JobStatusInitializing, EventAllComplete},
		{JobStatusInitializing, EventTimeout},
		{JobStatusAIFetching, EventSucceed},
		{JobStatusAnalyzing, EventTimeout},
		{JobStatusAnalyzing, EventAllComplete},
	}
	for _, tc := range illegal {
		if _, ok := NextStatus(tc.from, tc.event); ok {
			t.Fatalf("%s + %s must be rejected", tc.from, tc.event)
		}
	}

	// terminal states accept nothing at all
	events := []JobEvent{EventSucceed, EventFail, EventAllComplete,
		EventPartialComplete, EventAllFail, EventTimeout, EventPartialSucceed}
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusPartialSuccess, JobStatusFailed, JobStatusTimeout} {
		for _, ev := range events {
			if _, ok := NextStatus(s, ev); ok {
				t.Fatalf("terminal %s accepted %s", s, ev)
			}
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := map[JobStatus]bool{
		JobStatusInitializing:   false,
		JobStatusAIFetching:     false,
		JobStatusAnalyzing:      false,
		JobStatusCompleted:      true,
		JobStatusPartialSuccess: true,
		JobStatusFailed:         true,
		JobStatusTimeout:        true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Fatalf("%s.Terminal(): want %v", s, want)
		}
	}
}

func TestNewJobState(t *testing.T) {
	t.Parallel()

	st := NewJobState("exec-1")
	if st.Status != JobStatusInitializing || st.Stage != "created" {
		t.Fatalf("fresh state wrong: %+v", st)
	}
	if st.Metadata == nil {
		t.Fatalf("metadata map must be initialized")
	}
	if st.CreatedAt.IsZero() || st.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
}
