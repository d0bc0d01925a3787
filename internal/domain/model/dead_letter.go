package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type DeadLetterStatus string

const (
	DeadLetterPending    DeadLetterStatus = "pending"
	DeadLetterProcessing DeadLetterStatus = "processing"
	DeadLetterResolved   DeadLetterStatus = "resolved"
	DeadLetterIgnored    DeadLetterStatus = "ignored"
)

// DeadLetterEntry records one WorkItem whose retries are exhausted, parked
// for inspection or manual retry.
type DeadLetterEntry struct {
	ID          string
	ExecutionID string
	TaskType    string
	Context     string // serialized WorkItem context; best effort
	ErrorKind   string
	ErrorMsg    string
	RetryCount  int
	MaxRetries  int
	Priority    int
	Status      DeadLetterStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SerializeContext marshals v for storage. Non-serializable values degrade
// to their string rendering instead of failing the insert.
func SerializeContext(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// DeadLetterFilter narrows listings; zero values mean "any".
type DeadLetterFilter struct {
	ExecutionID string
	Status      DeadLetterStatus
	TaskType    string
	Limit       int
	Offset      int
}

// DeadLetterStats aggregates queue contents for dashboards.
type DeadLetterStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByKind   map[string]int `json:"by_kind"`
	Oldest   *time.Time     `json:"oldest_pending,omitempty"`
}
