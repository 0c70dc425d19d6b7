package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/directory"
	"qrattend/internal/metrics"
	"qrattend/internal/token"
	"qrattend/internal/window"
)

var opensAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	issuer   *token.Issuer
	verifier *Verifier
	records  *attendance.Memory
	metrics  *metrics.Metrics
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := directory.NewMemory()
	require.NoError(t, dir.PutActivity(directory.Activity{
		ID: "a1",
		Window: window.Window{
			OpenAt:               opensAt,
			CloseAt:              opensAt.Add(30 * time.Minute),
			LateToleranceMinutes: 10,
		},
	}))
	require.NoError(t, dir.PutActivity(directory.Activity{
		ID:     "a2",
		Window: window.Window{OpenAt: opensAt, CloseAt: opensAt.Add(time.Hour)},
	}))
	dir.PutParticipant(directory.Participant{ID: "p1", Name: "Ana"})

	signer := token.NewSigner("secret")
	f := &fixture{
		issuer:  token.NewIssuer(signer, 0),
		records: attendance.NewMemory(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.verifier = NewVerifier(signer, f.records, dir, f.metrics)
	f.setNow(opensAt.Add(25 * time.Minute))
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.now = now
	f.issuer.Now = func() time.Time { return f.now }
	f.verifier.Now = func() time.Time { return f.now }
}

func (f *fixture) payload(t *testing.T, participantID, activityID string) string {
	t.Helper()
	tok, err := f.issuer.Issue(participantID, activityID)
	require.NoError(t, err)
	return token.Encode(tok)
}

func (f *fixture) verify(payload, activityID string) (attendance.Record, error) {
	return f.verifier.Verify(context.Background(), Request{Payload: payload, ActivityID: activityID, StaffID: "staff-1"})
}

func TestVerifyRecordsPresent(t *testing.T) {
	f := newFixture(t)

	rec, err := f.verify(f.payload(t, "p1", "a1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, window.Present, rec.Status)
	assert.Equal(t, "staff-1", rec.RecordedBy)
	assert.Equal(t, attendance.MethodQR, rec.Method)
	assert.Equal(t, f.now.Add(token.DefaultTTL).UnixMilli(), rec.RawExpiry)
	assert.True(t, rec.RecordedAt.Equal(f.now))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Scans.WithLabelValues("recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Records.WithLabelValues("PRESENT")))
}

func TestVerifyRecordsLate(t *testing.T) {
	for _, minutes := range []int{35, 50} {
		f := newFixture(t)
		f.setNow(opensAt.Add(time.Duration(minutes) * time.Minute))

		rec, err := f.verify(f.payload(t, "p1", "a1"), "a1")
		require.NoError(t, err)
		assert.Equal(t, window.Late, rec.Status)
	}
}

func TestVerifyTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	payload := f.payload(t, "p1", "a1")

	_, err := f.verify(payload, "a1")
	require.NoError(t, err)
	_, err = f.verify(payload, "a1")
	assert.ErrorIs(t, err, attendance.ErrDuplicate)

	list, err := f.records.List(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVerifyFailures(t *testing.T) {
	f := newFixture(t)
	valid := f.payload(t, "p1", "a1")
	tok, err := token.Decode(valid)
	require.NoError(t, err)

	tampered := tok
	tampered.ParticipantID = "p2"

	tests := []struct {
		name     string
		payload  string
		activity string
		want     error
		outcome  Outcome
	}{
		{
			name:     "garbage",
			payload:  "hello",
			activity: "a1",
			want:     token.ErrMalformedToken,
			outcome:  OutcomeMalformed,
		},
		{
			name:     "five fields",
			payload:  base64.StdEncoding.EncodeToString([]byte("p1_a1_1_sig_x")),
			activity: "a1",
			want:     token.ErrMalformedToken,
			outcome:  OutcomeMalformed,
		},
		{
			name:     "tampered participant",
			payload:  token.Encode(tampered),
			activity: "a1",
			want:     token.ErrSignatureMismatch,
			outcome:  OutcomeSignatureMismatch,
		},
		{
			name:     "other activity selected",
			payload:  valid,
			activity: "a2",
			want:     ErrActivityMismatch,
			outcome:  OutcomeActivityMismatch,
		},
		{
			name:     "unknown participant",
			payload:  f.payload(t, "ghost", "a1"),
			activity: "a1",
			want:     directory.ErrParticipantNotFound,
			outcome:  OutcomeParticipantNotFound,
		},
		{
			name:     "unknown activity",
			payload:  f.payload(t, "p1", "gone"),
			activity: "gone",
			want:     directory.ErrActivityNotFound,
			outcome:  OutcomeActivityNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.verify(tt.payload, tt.activity)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.outcome, OutcomeOf(err))
			assert.False(t, Retryable(err))
		})
	}

	exists, err := f.records.Exists(context.Background(), "a1", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	payload := f.payload(t, "p1", "a1")
	tok, err := token.Decode(payload)
	require.NoError(t, err)

	f.setNow(tok.Expiry().Add(time.Millisecond))
	_, err = f.verify(payload, "a1")
	assert.ErrorIs(t, err, token.ErrExpired)

	f.setNow(tok.Expiry().Add(-time.Millisecond))
	_, err = f.verify(payload, "a1")
	assert.NoError(t, err)
}

func TestVerifyRequiresStaff(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.Verify(context.Background(), Request{Payload: f.payload(t, "p1", "a1"), ActivityID: "a1"})
	assert.Error(t, err)
	assert.Equal(t, OutcomeInternal, OutcomeOf(err))
}

type brokenRecorder struct {
	attendance.Recorder
}

func (brokenRecorder) Exists(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("%w: connection refused", attendance.ErrStoreUnavailable)
}

func TestVerifyStoreUnavailableIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.verifier.records = brokenRecorder{}

	_, err := f.verify(f.payload(t, "p1", "a1"), "a1")
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.Equal(t, OutcomeStoreUnavailable, OutcomeOf(err))
	assert.True(t, Retryable(err))
}

func TestConcurrentVerifiersRecordOnce(t *testing.T) {
	const stations = 16
	f := newFixture(t)
	payload := f.payload(t, "p1", "a1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	start := make(chan struct{})
	for i := 0; i < stations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.verify(payload, "a1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if !errors.Is(err, attendance.ErrDuplicate) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestOutcomeRoundTrip(t *testing.T) {
	for _, o := range []Outcome{
		OutcomeMalformed, OutcomeSignatureMismatch, OutcomeExpired, OutcomeActivityMismatch,
		OutcomeDuplicate, OutcomeParticipantNotFound, OutcomeActivityNotFound, OutcomeStoreUnavailable,
	} {
		assert.Equal(t, o, OutcomeOf(ErrorFor(o)), string(o))
		assert.NotEmpty(t, o.Message())
	}
	assert.NoError(t, ErrorFor(OutcomeRecorded))
	assert.Equal(t, OutcomeInternal, OutcomeOf(ErrorFor("bogus")))
	assert.Equal(t, OutcomeStoreUnavailable, OutcomeOf(directory.ErrUnavailable))
}
