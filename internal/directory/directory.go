// Package directory reads the portal's activities and participants. The
// attendance core never writes through it.
package directory

import (
	"context"
	"errors"
	"fmt"

	"qrattend/internal/window"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrActivityNotFound    = errors.New("activity not found")
	// ErrUnavailable wraps transient lookup failures.
	ErrUnavailable = errors.New("directory unavailable")
)

// Activity is the subset of a portal activity this service reads.
type Activity struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Window window.Window `json:"window" yaml:"window"`
}

// Participant is a registered member.
type Participant struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email"`
}

// Directory resolves activities and participants.
type Directory interface {
	GetActivity(ctx context.Context, id string) (Activity, error)
	GetParticipant(ctx context.Context, id string) (Participant, error)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
