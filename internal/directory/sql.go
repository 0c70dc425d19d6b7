package directory

import (
	"context"
	"database/sql"
	"errors"
)

// SQL reads the activities and participants tables.
type SQL struct {
	db *sql.DB
}

// NewSQL creates a SQL-backed directory.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

// GetActivity returns an activity and its attendance window.
func (d *SQL) GetActivity(ctx context.Context, id string) (Activity, error) {
	var a Activity
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, open_at, close_at, late_tolerance_minutes
		FROM activities WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Window.OpenAt, &a.Window.CloseAt, &a.Window.LateToleranceMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, ErrActivityNotFound
	}
	if err != nil {
		return Activity{}, unavailable(err)
	}
	a.Window.OpenAt = a.Window.OpenAt.UTC()
	a.Window.CloseAt = a.Window.CloseAt.UTC()
	return a, nil
}

// GetParticipant returns a participant by id.
func (d *SQL) GetParticipant(ctx context.Context, id string) (Participant, error) {
	var p Participant
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, email FROM participants WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return Participant{}, unavailable(err)
	}
	return p, nil
}

// UpsertActivity seeds or refreshes an activity.
func (d *SQL) UpsertActivity(ctx context.Context, a Activity) error {
	if err := a.Window.Validate(); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO activities (id, name, open_at, close_at, late_tolerance_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			open_at = EXCLUDED.open_at,
			close_at = EXCLUDED.close_at,
			late_tolerance_minutes = EXCLUDED.late_tolerance_minutes
	`, a.ID, a.Name, a.Window.OpenAt.UTC(), a.Window.CloseAt.UTC(), a.Window.LateToleranceMinutes)
	return err
}

// UpsertParticipant seeds or refreshes a participant.
func (d *SQL) UpsertParticipant(ctx context.Context, p Participant) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO participants (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email
	`, p.ID, p.Name, p.Email)
	return err
}
