package fault

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
)

type jobTimer struct {
	timer    *time.Timer
	deadline time.Time
	fired    bool
}

// TimeoutManager tracks one cancellable deadline timer per execution.
// A single mutex guards the whole table; the fire path re-checks under the
// same lock, so "already fired" and "cancel" can never race.
type TimeoutManager struct {
	log *zerolog.Logger

	mu     sync.Mutex
	timers map[string]*jobTimer
}

func NewTimeoutManager(logger *zerolog.Logger) *TimeoutManager {
	l := logger.With().Str("component", "TimeoutManager").Logger()
	return &TimeoutManager{
		log:    &l,
		timers: make(map[string]*jobTimer),
	}
}

// StartTimer arms a timer for executionID that invokes callback exactly once
// after d. Reusing a live id or passing a nil callback is an error.
func (m *TimeoutManager) StartTimer(executionID string, callback func(), d time.Duration) error {
	if callback == nil {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.timers[executionID]; exists {
		return domain.ErrTimerExists
	}

	jt := &jobTimer{deadline: time.Now().Add(d)}
	jt.timer = time.AfterFunc(d, func() { m.fire(executionID, jt, callback) })
	m.timers[executionID] = jt
	return nil
}

func (m *TimeoutManager) fire(executionID string, jt *jobTimer, callback func()) {
	m.mu.Lock()
	cur, ok := m.timers[executionID]
	if !ok || cur != jt || jt.fired {
		// cancelled (or replaced) before we won the lock
		m.mu.Unlock()
		return
	}
	jt.fired = true
	delete(m.timers, executionID)
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("execution_id", executionID).Interface("panic", r).
				Msg("timeout callback panicked")
		}
	}()
	callback()
}

// CancelTimer stops the timer for executionID. It is idempotent: the second
// call (or a cancel after firing) returns false.
func (m *TimeoutManager) CancelTimer(executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt, ok := m.timers[executionID]
	if !ok || jt.fired {
		return false
	}
	jt.timer.Stop()
	delete(m.timers, executionID)
	return true
}

// RemainingTime returns the time left before the timer fires, and 0 for
// unknown or expired ids.
func (m *TimeoutManager) RemainingTime(executionID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt, ok := m.timers[executionID]
	if !ok {
		return 0
	}
	left := time.Until(jt.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Active returns how many timers are currently armed.
func (m *TimeoutManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
