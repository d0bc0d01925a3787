package usecase

import (
	"sync"
	"time"

	"ai-brand-diagnosis/internal/domain/model"
)

// Health score weighting and the no-rank default are product heuristics
// carried over as-is; do not re-derive them.
const (
	healthWeightSOV       = 0.50
	healthWeightSentiment = 0.30
	healthWeightRank      = 0.20
	defaultRankScore      = 0.5 // applied while nothing is ranked yet
)

// IncrementalAggregator folds AICallResults into a running snapshot one at
// a time, with no batch assumptions: results arrive in arbitrary order from
// concurrent workers, and every AddResult returns the full up-to-date
// numbers so callers can stream them straight to a dashboard.
//
// A (brand,question,model) triple seen twice is counted once.
type IncrementalAggregator struct {
	mu sync.Mutex

	executionID string
	mainBrand   string

	seen map[string]struct{}

	total          int
	brandResponses map[string]int
	brandSuccesses map[string]int

	sentimentSum float64
	sentimentN   int
	rankSum      int
	mentionedN   int

	modelTotal      map[string]int
	modelOK         map[string]int
	questionTotal   map[string]int
	questionMention map[string]int
}

func NewIncrementalAggregator(executionID, mainBrand string) *IncrementalAggregator {
	return &IncrementalAggregator{
		executionID:     executionID,
		mainBrand:       mainBrand,
		seen:            make(map[string]struct{}),
		brandResponses:  make(map[string]int),
		brandSuccesses:  make(map[string]int),
		modelTotal:      make(map[string]int),
		modelOK:         make(map[string]int),
		questionTotal:   make(map[string]int),
		questionMention: make(map[string]int),
	}
}

// AddResult consumes one terminal WorkItem outcome and returns the updated
// snapshot. Duplicate triples return the current snapshot unchanged.
func (a *IncrementalAggregator) AddResult(r *model.AICallResult) model.AggregatedSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := r.Item.Key()
	if _, dup := a.seen[key]; dup {
		return a.snapshotLocked()
	}
	a.seen[key] = struct{}{}

	a.total++
	a.brandResponses[r.Item.Brand]++
	a.modelTotal[r.Item.Model]++
	a.questionTotal[r.Item.Question]++

	if r.Succeeded() {
		a.brandSuccesses[r.Item.Brand]++
		a.modelOK[r.Item.Model]++
		a.sentimentSum += r.Geo.Sentiment
		a.sentimentN++
		if r.Geo.Mentioned {
			a.questionMention[r.Item.Question]++
			if r.Geo.Rank > 0 {
				a.rankSum += r.Geo.Rank
				a.mentionedN++
			}
		}
	}

	return a.snapshotLocked()
}

// Snapshot returns the current numbers without consuming anything.
func (a *IncrementalAggregator) Snapshot() model.AggregatedSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *IncrementalAggregator) snapshotLocked() model.AggregatedSnapshot {
	s := model.AggregatedSnapshot{
		ExecutionID:         a.executionID,
		TotalResponses:      a.total,
		BrandResponses:      copyCounts(a.brandResponses),
		BrandSuccesses:      copyCounts(a.brandSuccesses),
		ModelSuccessRate:    make(map[string]float64, len(a.modelTotal)),
		QuestionMentionRate: make(map[string]float64, len(a.questionTotal)),
		MentionedN:          a.mentionedN,
		UpdatedAt:           time.Now(),
	}

	if a.total > 0 {
		s.ShareOfVoice = float64(a.brandResponses[a.mainBrand]) / float64(a.total)
	}
	if a.sentimentN > 0 {
		s.AvgSentiment = a.sentimentSum / float64(a.sentimentN)
	}
	if a.mentionedN > 0 {
		s.AvgRank = float64(a.rankSum) / float64(a.mentionedN)
	}
	for m, n := range a.modelTotal {
		s.ModelSuccessRate[m] = float64(a.modelOK[m]) / float64(n)
	}
	for q, n := range a.questionTotal {
		s.QuestionMentionRate[q] = float64(a.questionMention[q]) / float64(n)
	}

	s.HealthScore = healthScore(s.ShareOfVoice, s.AvgSentiment, s.AvgRank, a.mentionedN > 0)
	return s
}

// healthScore composes SOV, sentiment and rank into one 0-100 number.
// Rank contributes more the closer the average sits to 1.
func healthScore(sov, sentiment, avgRank float64, ranked bool) float64 {
	rankScore := defaultRankScore
	if ranked && avgRank >= 1 {
		rankScore = 1 / avgRank
	}
	h := (healthWeightSOV*sov + healthWeightSentiment*sentiment + healthWeightRank*rankScore) * 100
	if h < 0 {
		return 0
	}
	if h > 100 {
		return 100
	}
	return h
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
