package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	ttl    time.Duration
	issued atomic.Int32
	err    error
}

func (f *fakeTokens) RequestToken(context.Context, string) (Issued, error) {
	if f.err != nil {
		return Issued{}, f.err
	}
	n := f.issued.Add(1)
	return Issued{Payload: fmt.Sprintf("token-%d", n), ExpiresAt: time.Now().Add(f.ttl)}, nil
}

type fakeStatus struct {
	recorded atomic.Bool
	calls    atomic.Int32
}

func (f *fakeStatus) AttendanceRecorded(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.recorded.Load(), nil
}

func waitTerminal(t *testing.T, p *Poller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := p.Wait(ctx)
	require.NoError(t, err)
	return state
}

func TestPollerConfirms(t *testing.T) {
	tokens := &fakeTokens{ttl: time.Minute}
	status := &fakeStatus{}
	p := NewPoller(tokens, status, "a1", 5*time.Millisecond)
	defer p.Close()

	var mu sync.Mutex
	var seen []State
	p.OnChange = func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
	}

	assert.Equal(t, Idle, p.State())
	require.NoError(t, p.Request(context.Background()))
	snap := p.Snapshot()
	assert.Equal(t, TokenShown, snap.State)
	require.NotNil(t, snap.Token)
	assert.Equal(t, "token-1", snap.Token.Payload)
	assert.Greater(t, snap.Remain, 50*time.Second)

	status.recorded.Store(true)
	assert.Equal(t, Confirmed, waitTerminal(t, p))
	assert.Equal(t, time.Duration(0), p.Snapshot().Remain)

	mu.Lock()
	assert.Equal(t, []State{TokenShown, Confirmed}, seen)
	mu.Unlock()
}

func TestPollerExpiresAndRetries(t *testing.T) {
	tokens := &fakeTokens{ttl: 30 * time.Millisecond}
	status := &fakeStatus{}
	p := NewPoller(tokens, status, "a1", 5*time.Millisecond)
	defer p.Close()

	require.NoError(t, p.Request(context.Background()))
	assert.Equal(t, Expired, waitTerminal(t, p))

	tokens.ttl = time.Minute
	require.NoError(t, p.Retry(context.Background()))
	snap := p.Snapshot()
	assert.Equal(t, TokenShown, snap.State)
	assert.Equal(t, "token-2", snap.Token.Payload)

	status.recorded.Store(true)
	assert.Equal(t, Confirmed, waitTerminal(t, p))
}

func TestPollerRecordWinsSameTick(t *testing.T) {
	// countdown fires immediately, the poll ticker never does
	tokens := &fakeTokens{ttl: 0}
	status := &fakeStatus{}
	status.recorded.Store(true)
	p := NewPoller(tokens, status, "a1", time.Hour)
	defer p.Close()

	require.NoError(t, p.Request(context.Background()))
	assert.Equal(t, Confirmed, waitTerminal(t, p))
}

func TestPollerInvalidTransitions(t *testing.T) {
	tokens := &fakeTokens{ttl: time.Minute}
	p := NewPoller(tokens, &fakeStatus{}, "a1", time.Hour)
	defer p.Close()

	assert.ErrorIs(t, p.Retry(context.Background()), ErrInvalidTransition)
	require.NoError(t, p.Request(context.Background()))
	assert.ErrorIs(t, p.Request(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, p.Retry(context.Background()), ErrInvalidTransition)
}

func TestPollerRequestFailureStaysIdle(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("boom")}
	p := NewPoller(tokens, &fakeStatus{}, "a1", 0)

	assert.Error(t, p.Request(context.Background()))
	assert.Equal(t, Idle, p.State())
	state, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

func TestPollerCloseStopsPolling(t *testing.T) {
	tokens := &fakeTokens{ttl: time.Minute}
	status := &fakeStatus{}
	p := NewPoller(tokens, status, "a1", 2*time.Millisecond)

	require.NoError(t, p.Request(context.Background()))
	require.Eventually(t, func() bool { return status.calls.Load() > 0 }, time.Second, time.Millisecond)

	p.Close()
	calls := status.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, status.calls.Load())
	assert.Equal(t, TokenShown, p.State())
}

type gatedTokens struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTokens) RequestToken(context.Context, string) (Issued, error) {
	g.entered <- struct{}{}
	<-g.release
	return Issued{Payload: "token-1", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func TestPollerCloseDuringRequestDoesNotPoll(t *testing.T) {
	tokens := &gatedTokens{entered: make(chan struct{}), release: make(chan struct{})}
	status := &fakeStatus{}
	p := NewPoller(tokens, status, "a1", 2*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Request(context.Background()) }()

	<-tokens.entered
	p.Close()
	close(tokens.release)

	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.Equal(t, Idle, p.State())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), status.calls.Load())

	assert.ErrorIs(t, p.Request(context.Background()), ErrClosed)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "5:00", FormatRemaining(300*time.Second))
	assert.Equal(t, "0:09", FormatRemaining(9*time.Second))
	assert.Equal(t, "0:00", FormatRemaining(-time.Second))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "token_shown", TokenShown.String())
	assert.True(t, Expired.Terminal())
	assert.False(t, Idle.Terminal())
}
