package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/directory"
	"qrattend/internal/metrics"
	"qrattend/internal/token"
	"qrattend/internal/window"
)

// ErrActivityMismatch means the token was issued for another activity than
// the one being scanned.
var ErrActivityMismatch = errors.New("token issued for a different activity")

// Request is one scanned payload presented to the verifier.
type Request struct {
	Payload    string
	ActivityID string // activity selected on the scanner
	StaffID    string
}

// Verifier checks scanned tokens and records attendance.
type Verifier struct {
	signer  *token.Signer
	records attendance.Recorder
	dir     directory.Directory
	metrics *metrics.Metrics
	Now     func() time.Time
}

// NewVerifier wires a verifier. m may be nil.
func NewVerifier(signer *token.Signer, records attendance.Recorder, dir directory.Directory, m *metrics.Metrics) *Verifier {
	return &Verifier{signer: signer, records: records, dir: dir, metrics: m, Now: time.Now}
}

// Verify runs the full pipeline, stopping at the first failure:
// decode, signature, expiry, activity, duplicate, participant, then the
// window classification and the conditional write.
func (v *Verifier) Verify(ctx context.Context, req Request) (attendance.Record, error) {
	started := time.Now()
	rec, err := v.verify(ctx, req)
	v.metrics.ScanFinished(string(OutcomeOf(err)), started)
	if err == nil {
		v.metrics.RecordWritten(string(rec.Status))
	}
	return rec, err
}

func (v *Verifier) verify(ctx context.Context, req Request) (attendance.Record, error) {
	if req.StaffID == "" {
		return attendance.Record{}, errors.New("staff id required")
	}
	tok, err := token.Decode(req.Payload)
	if err != nil {
		return attendance.Record{}, err
	}
	now := v.Now()
	if err := v.signer.Check(tok, now); err != nil {
		return attendance.Record{}, err
	}
	if tok.ActivityID != req.ActivityID {
		return attendance.Record{}, fmt.Errorf("%w: token for %q, scanning %q", ErrActivityMismatch, tok.ActivityID, req.ActivityID)
	}
	exists, err := v.records.Exists(ctx, tok.ActivityID, tok.ParticipantID)
	if err != nil {
		return attendance.Record{}, err
	}
	if exists {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	if _, err := v.dir.GetParticipant(ctx, tok.ParticipantID); err != nil {
		return attendance.Record{}, err
	}
	activity, err := v.dir.GetActivity(ctx, tok.ActivityID)
	if err != nil {
		return attendance.Record{}, err
	}

	// The existence check above is only a fast path; Create is the guard.
	return v.records.Create(ctx, attendance.Record{
		ActivityID:    tok.ActivityID,
		ParticipantID: tok.ParticipantID,
		Status:        window.Classify(activity.Window, now),
		RecordedAt:    now.UTC(),
		RecordedBy:    req.StaffID,
		Method:        attendance.MethodQR,
		RawExpiry:     tok.ExpiresAt,
	})
}

// Scanner is what a scan session drives: one payload against one activity.
type Scanner interface {
	Scan(ctx context.Context, activityID, payload string) (attendance.Record, error)
}

// ForStaff binds the verifier to a staff identity.
func (v *Verifier) ForStaff(staffID string) Scanner {
	return staffScanner{v: v, staffID: staffID}
}

type staffScanner struct {
	v       *Verifier
	staffID string
}

func (s staffScanner) Scan(ctx context.Context, activityID, payload string) (attendance.Record, error) {
	return s.v.Verify(ctx, Request{Payload: payload, ActivityID: activityID, StaffID: s.staffID})
}
