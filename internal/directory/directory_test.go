package directory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/store"
	"qrattend/internal/window"
)

const seedYAML = `
activities:
  - id: orientation
    name: Orientation Day
    window:
      open_at: 2026-03-02T09:00:00Z
      close_at: 2026-03-02T09:30:00Z
      late_tolerance_minutes: 10
participants:
  - id: p1
    name: Ana
    email: ana@example.org
`

func TestLoadSeed(t *testing.T) {
	m, err := Load(strings.NewReader(seedYAML))
	require.NoError(t, err)

	a, err := m.GetActivity(context.Background(), "orientation")
	require.NoError(t, err)
	assert.Equal(t, "Orientation Day", a.Name)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), a.Window.CloseAt.UTC())
	assert.Equal(t, 10, a.Window.LateToleranceMinutes)

	p, err := m.GetParticipant(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)

	_, err = m.GetParticipant(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	_, err = m.GetActivity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrActivityNotFound)

	seed := m.Seed()
	assert.Len(t, seed.Activities, 1)
	assert.Len(t, seed.Participants, 1)
}

func TestLoadRejectsInvertedWindow(t *testing.T) {
	_, err := Load(strings.NewReader(`
activities:
  - id: bad
    window:
      open_at: 2026-03-02T10:00:00Z
      close_at: 2026-03-02T09:00:00Z
`))
	assert.ErrorIs(t, err, window.ErrInvalidWindow)
}

func TestSQLDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewDB("sqlite3", filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	d := NewSQL(db.Client)

	w := window.Window{
		OpenAt:               time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		CloseAt:              time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		LateToleranceMinutes: 10,
	}
	require.NoError(t, d.UpsertActivity(ctx, Activity{ID: "a1", Name: "Kickoff", Window: w}))
	require.NoError(t, d.UpsertParticipant(ctx, Participant{ID: "p1", Name: "Ana"}))

	a, err := d.GetActivity(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, w.OpenAt.Equal(a.Window.OpenAt))
	assert.True(t, w.CloseAt.Equal(a.Window.CloseAt))
	assert.Equal(t, 10, a.Window.LateToleranceMinutes)

	p, err := d.GetParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)

	_, err = d.GetParticipant(ctx, "nope")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	_, err = d.GetActivity(ctx, "nope")
	assert.ErrorIs(t, err, ErrActivityNotFound)
}
