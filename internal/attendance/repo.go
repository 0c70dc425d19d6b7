package attendance

import (
	"context"
	"database/sql"
	"errors"

	"qrattend/internal/window"
)

// Repository persists attendance records in Postgres or SQLite. The
// (activity_id, participant_id) primary key backs the at-most-once guarantee.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether a record exists for the pair.
func (r *Repository) Exists(ctx context.Context, activityID, participantID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records
		WHERE activity_id = $1 AND participant_id = $2
	`, activityID, participantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return true, nil
}

// Create inserts the record unless one already exists for the pair.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	rec, err := prepare(rec)
	if err != nil {
		return Record{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, activity_id, participant_id, status, recorded_at, recorded_by, method, raw_expiry)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (activity_id, participant_id) DO NOTHING
	`, rec.ID, rec.ActivityID, rec.ParticipantID, string(rec.Status), rec.RecordedAt, rec.RecordedBy, rec.Method, rec.RawExpiry)
	if err != nil {
		return Record{}, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, unavailable(err)
	}
	if n == 0 {
		return Record{}, ErrDuplicate
	}
	return rec, nil
}

// Get returns the record for the pair.
func (r *Repository) Get(ctx context.Context, activityID, participantID string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, activity_id, participant_id, status, recorded_at, recorded_by, method, raw_expiry
		FROM attendance_records
		WHERE activity_id = $1 AND participant_id = $2
	`, activityID, participantID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, unavailable(err)
	}
	return rec, nil
}

// List returns an activity's records, oldest first.
func (r *Repository) List(ctx context.Context, activityID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, participant_id, status, recorded_at, recorded_by, method, raw_expiry
		FROM attendance_records
		WHERE activity_id = $1
		ORDER BY recorded_at, participant_id
	`, activityID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var status string
	if err := s.Scan(&rec.ID, &rec.ActivityID, &rec.ParticipantID, &status, &rec.RecordedAt, &rec.RecordedBy, &rec.Method, &rec.RawExpiry); err != nil {
		return Record{}, err
	}
	rec.Status = window.Status(status)
	rec.RecordedAt = rec.RecordedAt.UTC()
	return rec, nil
}
