package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"qrattend/internal/attendance"
)

// DismissAfter is how long a result stays on the operator's screen.
const DismissAfter = 3 * time.Second

// Result is what the operator sees after a scan.
type Result struct {
	Outcome   Outcome            `json:"outcome"`
	Message   string             `json:"message"`
	Record    *attendance.Record `json:"record,omitempty"`
	Retryable bool               `json:"retryable"`
	At        time.Time          `json:"at"`
	DismissAt time.Time          `json:"dismiss_at"`
}

// NewResult builds the operator result for a verification outcome.
func NewResult(rec attendance.Record, err error, at time.Time) Result {
	outcome := OutcomeOf(err)
	res := Result{
		Outcome:   outcome,
		Message:   outcome.Message(),
		Retryable: Retryable(err),
		At:        at,
		DismissAt: at.Add(DismissAfter),
	}
	if err == nil {
		res.Record = &rec
		res.Message = fmt.Sprintf("%s: %s (%s)", outcome.Message(), rec.ParticipantID, rec.Status)
	}
	return res
}

// Session is one open scanner. Frames that arrive while a scan is in flight
// are dropped, never processed concurrently.
type Session struct {
	scanner    Scanner
	processing atomic.Bool
	Now        func() time.Time

	mu         sync.Mutex
	activityID string
	last       *Result
}

// NewSession opens a scanner for the selected activity.
func NewSession(scanner Scanner, activityID string) *Session {
	return &Session{scanner: scanner, activityID: activityID, Now: time.Now}
}

// Select switches the activity being scanned and clears the last result.
func (s *Session) Select(activityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityID = activityID
	s.last = nil
}

// SelectedActivity returns the activity being scanned.
func (s *Session) SelectedActivity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityID
}

// Processing reports whether a scan is in flight.
func (s *Session) Processing() bool {
	return s.processing.Load()
}

// Handle processes one scanned payload. It returns false without doing
// anything if another scan is still in flight.
func (s *Session) Handle(ctx context.Context, payload string) (Result, bool) {
	if !s.processing.CompareAndSwap(false, true) {
		return Result{}, false
	}
	defer s.processing.Store(false)

	rec, err := s.scanner.Scan(ctx, s.SelectedActivity(), payload)
	res := NewResult(rec, err, s.Now())

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res, true
}

// LastResult returns the most recent result, dismissed or not.
func (s *Session) LastResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Current returns the result still on screen, if any.
func (s *Session) Current() (Result, bool) {
	res, ok := s.LastResult()
	if !ok || !s.Now().Before(res.DismissAt) {
		return Result{}, false
	}
	return res, true
}
