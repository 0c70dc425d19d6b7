package window

import (
	"errors"
	"time"
)

// Status is the attendance classification of a scan.
type Status string

const (
	Present Status = "PRESENT"
	Late    Status = "LATE"
)

// ErrInvalidWindow is returned by Validate when openAt is after closeAt.
var ErrInvalidWindow = errors.New("attendance window opens after it closes")

// Window is an activity's attendance window. It is owned by the activity
// and read-only here.
type Window struct {
	OpenAt               time.Time `json:"open_at" yaml:"open_at"`
	CloseAt              time.Time `json:"close_at" yaml:"close_at"`
	LateToleranceMinutes int       `json:"late_tolerance_minutes" yaml:"late_tolerance_minutes"`
}

// Validate checks openAt <= closeAt and a non-negative tolerance.
func (w Window) Validate() error {
	if w.OpenAt.After(w.CloseAt) || w.LateToleranceMinutes < 0 {
		return ErrInvalidWindow
	}
	return nil
}

// LateUntil is the end of the late-tolerance grace period.
func (w Window) LateUntil() time.Time {
	return w.CloseAt.Add(time.Duration(w.LateToleranceMinutes) * time.Minute)
}

// Classify decides PRESENT or LATE for a scan at now. Scans before the window
// opens count as present; anything after close is late, including scans past
// the tolerance, which are still recorded.
func Classify(w Window, now time.Time) Status {
	switch {
	case now.Before(w.OpenAt):
		return Present
	case !now.After(w.CloseAt):
		return Present
	default:
		return Late
	}
}

// WithinTolerance reports whether a late scan still falls inside the grace
// period. Classify does not use it; reporting does.
func WithinTolerance(w Window, now time.Time) bool {
	return !now.After(w.LateUntil())
}
