package model

import "time"

type CallStatus string

const (
	CallStatusSuccess CallStatus = "success"
	CallStatusFailed  CallStatus = "failed"
)

// GeoData is the structured brand-perception payload extracted from one AI
// response: whether the brand was mentioned, where it ranked among the
// alternatives the model listed, and how positively it was described.
type GeoData struct {
	Mentioned    bool     `json:"mentioned"`
	Rank         int      `json:"rank"`      // 1-based; 0 when not ranked
	Sentiment    float64  `json:"sentiment"` // 0..1
	CitedSources []string `json:"cited_sources,omitempty"`
}

// AICallResult is the terminal outcome of one WorkItem.
type AICallResult struct {
	ID          string
	ExecutionID string
	Item        WorkItem
	Status      CallStatus
	Response    string
	Geo         GeoData
	LatencyMS   int64
	ErrorKind   string // empty on success
	ErrorMsg    string
	RetryCount  int
	CreatedAt   time.Time
}

func (r *AICallResult) Succeeded() bool { return r.Status == CallStatusSuccess }
