package model

import (
	"time"

	"ai-brand-diagnosis/internal/domain"
)

// JobSpec is the immutable description of one diagnosis run: which brand to
// diagnose, against which competitors, over which questions and AI models.
// It is validated once on acceptance and never mutated afterwards.
type JobSpec struct {
	ExecutionID      string
	MainBrand        string
	CompetitorBrands []string
	Questions        []string
	TargetModels     []string
	UserID           string
	CreatedAt        time.Time
}

// NewJobSpec validates and constructs a spec. Empty competitor lists are
// allowed (single-brand diagnosis); empty questions or models are not.
func NewJobSpec(executionID, mainBrand string, competitors, questions, models []string, userID string) (*JobSpec, error) {
	s := &JobSpec{
		ExecutionID:      executionID,
		MainBrand:        mainBrand,
		CompetitorBrands: competitors,
		Questions:        questions,
		TargetModels:     models,
		UserID:           userID,
		CreatedAt:        time.Now(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects a spec that would explode into zero or malformed
// WorkItems. NewJobSpec applies it at construction; services accepting a
// caller-built spec re-apply it before any WorkItem exists.
func (s *JobSpec) Validate() error {
	if s == nil {
		return domain.ErrInvalidArgument
	}
	if s.ExecutionID == "" || s.MainBrand == "" || s.UserID == "" {
		return domain.ErrInvalidArgument
	}
	if len(s.Questions) == 0 || len(s.TargetModels) == 0 {
		return domain.ErrInvalidArgument
	}
	for _, q := range s.Questions {
		if q == "" {
			return domain.ErrInvalidArgument
		}
	}
	for _, m := range s.TargetModels {
		if m == "" {
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

// Brands returns main brand + competitors in stable order.
func (s *JobSpec) Brands() []string {
	out := make([]string, 0, 1+len(s.CompetitorBrands))
	out = append(out, s.MainBrand)
	out = append(out, s.CompetitorBrands...)
	return out
}

// ExpectedResults is the WorkItem count: brands x questions x models.
func (s *JobSpec) ExpectedResults() int {
	return len(s.Brands()) * len(s.Questions) * len(s.TargetModels)
}

// WorkItem is one (brand, question, model) unit dispatched to an external
// AI service. Items of the same job carry the same ExecutionID.
type WorkItem struct {
	ExecutionID string `json:"execution_id"`
	Brand       string `json:"brand"`
	Question    string `json:"question"`
	Model       string `json:"model"`
}

// Key identifies the (brand, question, model) triple for dedupe purposes.
func (w WorkItem) Key() string {
	return w.Brand + "\x1f" + w.Question + "\x1f" + w.Model
}

// ExplodeWorkItems builds the cartesian product of brands x questions x models.
func (s *JobSpec) ExplodeWorkItems() []WorkItem {
	items := make([]WorkItem, 0, s.ExpectedResults())
	for _, brand := range s.Brands() {
		for _, question := range s.Questions {
			for _, m := range s.TargetModels {
				items = append(items, WorkItem{
					ExecutionID: s.ExecutionID,
					Brand:       brand,
					Question:    question,
					Model:       m,
				})
			}
		}
	}
	return items
}
