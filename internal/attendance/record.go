package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/window"
)

// MethodQR marks records written by a QR scan.
const MethodQR = "QR"

var (
	// ErrDuplicate means a record for the (activity, participant) pair already exists.
	ErrDuplicate = errors.New("attendance already recorded")
	// ErrNotFound means no record exists for the pair.
	ErrNotFound = errors.New("attendance record not found")
	// ErrStoreUnavailable wraps transient failures of the backing store.
	ErrStoreUnavailable = errors.New("attendance store unavailable")
)

// Record is a persisted attendance entry keyed by (ActivityID, ParticipantID).
// It is never updated once written.
type Record struct {
	ID            string        `json:"id"`
	ActivityID    string        `json:"activity_id"`
	ParticipantID string        `json:"participant_id"`
	Status        window.Status `json:"status"`
	RecordedAt    time.Time     `json:"recorded_at"`
	RecordedBy    string        `json:"recorded_by"`
	Method        string        `json:"method"`
	RawExpiry     int64         `json:"raw_expiry"`
}

// Recorder is the at-most-once attendance store. Create must be a single
// conditional write: concurrent calls for one pair yield exactly one success.
type Recorder interface {
	Exists(ctx context.Context, activityID, participantID string) (bool, error)
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, activityID, participantID string) (Record, error)
	List(ctx context.Context, activityID string) ([]Record, error)
}

// prepare validates a record and fills server-side defaults.
func prepare(rec Record) (Record, error) {
	if rec.ActivityID == "" || rec.ParticipantID == "" {
		return Record{}, errors.New("activity and participant required")
	}
	if rec.Status != window.Present && rec.Status != window.Late {
		return Record{}, fmt.Errorf("invalid status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	if rec.Method == "" {
		rec.Method = MethodQR
	}
	return rec, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
