// Package presence drives the participant's side of a QR check-in: show a
// token, count it down, and poll until staff have recorded the scan.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// State of a participant's check-in.
type State int

const (
	Idle State = iota
	TokenShown
	Confirmed
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TokenShown:
		return "token_shown"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition happens without Retry.
func (s State) Terminal() bool {
	return s == Confirmed || s == Expired
}

// DefaultPollInterval is how often the attendance store is checked.
const DefaultPollInterval = 3 * time.Second

// ErrInvalidTransition is returned when an action is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrClosed is returned by Request and Retry once Close has been called.
var ErrClosed = errors.New("poller closed")

// Issued is a token as shown to the participant.
type Issued struct {
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSource mints a token for the signed-in participant.
type TokenSource interface {
	RequestToken(ctx context.Context, activityID string) (Issued, error)
}

// StatusSource reports whether the signed-in participant's attendance for an
// activity has been recorded.
type StatusSource interface {
	AttendanceRecorded(ctx context.Context, activityID string) (bool, error)
}

// Snapshot is the observable state of a poller.
type Snapshot struct {
	State  State
	Token  *Issued
	Remain time.Duration
}

// Poller is the participant check-in state machine. The poll ticker and the
// countdown share one context, so any terminal transition or Close stops both.
type Poller struct {
	tokens     TokenSource
	status     StatusSource
	activityID string
	interval   time.Duration

	// Now is used for the countdown.
	Now func() time.Time
	// OnChange, if set, is called after every transition, outside the lock.
	OnChange func(Snapshot)

	mu      sync.Mutex
	state   State
	current *Issued
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// NewPoller creates a poller in Idle. A non-positive interval uses the default.
func NewPoller(tokens TokenSource, status StatusSource, activityID string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		tokens:     tokens,
		status:     status,
		activityID: activityID,
		interval:   interval,
		Now:        time.Now,
		state:      Idle,
	}
}

// Snapshot returns the current state, token and remaining validity.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	snap := Snapshot{State: p.state}
	if p.current != nil {
		tok := *p.current
		snap.Token = &tok
		if p.state == TokenShown {
			snap.Remain = max(tok.ExpiresAt.Sub(p.Now()), 0)
		}
	}
	return snap
}

// State returns the current state.
func (p *Poller) State() State {
	return p.Snapshot().State
}

// Request moves Idle -> TokenShown and starts polling.
func (p *Poller) Request(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Idle {
		p.mu.Unlock()
		return fmt.Errorf("%w: request from %s", ErrInvalidTransition, p.state)
	}
	p.mu.Unlock()

	issued, err := p.tokens.RequestToken(ctx, p.activityID)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}

	p.mu.Lock()
	// Close may have run while the token was being fetched.
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Idle {
		p.mu.Unlock()
		return fmt.Errorf("%w: request raced with %s", ErrInvalidTransition, p.state)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.state = TokenShown
	p.current = &issued
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
	go p.run(runCtx, issued, done)
	return nil
}

// Retry moves Expired -> Idle and requests a fresh token.
func (p *Poller) Retry(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Expired {
		p.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, p.state)
	}
	p.state = Idle
	p.current = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
	return p.Request(ctx)
}

// Wait blocks until the poller reaches a terminal state or ctx ends.
func (p *Poller) Wait(ctx context.Context) (State, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return p.State(), nil
	}
	select {
	case <-done:
		return p.State(), nil
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}
}

// Close stops any running poll and countdown and refuses further requests.
// The state is left as is.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, issued Issued, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	countdown := time.NewTimer(max(issued.ExpiresAt.Sub(p.Now()), 0))
	defer countdown.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.recorded(ctx) {
				p.finish(Confirmed)
				return
			}
		case <-countdown.C:
			// A record that landed in the same tick still wins.
			if p.recorded(ctx) {
				p.finish(Confirmed)
			} else {
				p.finish(Expired)
			}
			return
		}
	}
}

func (p *Poller) recorded(ctx context.Context) bool {
	ok, err := p.status.AttendanceRecorded(ctx, p.activityID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("presence: status check for %s failed: %v", p.activityID, err)
		}
		return false
	}
	return ok
}

func (p *Poller) finish(to State) {
	p.mu.Lock()
	if p.state != TokenShown {
		p.mu.Unlock()
		return
	}
	p.state = to
	p.cancel()
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Poller) notify(snap Snapshot) {
	if p.OnChange != nil {
		p.OnChange(snap)
	}
}

// FormatRemaining renders a countdown as m:ss.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
