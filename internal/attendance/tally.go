package attendance

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/window"
)

// Tally keeps per-activity sets of participants by status. Adding the same
// record twice leaves the counts unchanged.
type Tally struct {
	client *redis.Client
	prefix string
}

// Summary counts an activity's records by status.
type Summary struct {
	ActivityID string `json:"activity_id"`
	Present    int64  `json:"present"`
	Late       int64  `json:"late"`
}

// Total is present plus late.
func (s Summary) Total() int64 { return s.Present + s.Late }

// NewTally creates a tally under the given key prefix.
func NewTally(client *redis.Client, prefix string) *Tally {
	if prefix == "" {
		prefix = "attendance:tally"
	}
	return &Tally{client: client, prefix: prefix}
}

func (t *Tally) key(activityID string, status window.Status) string {
	return fmt.Sprintf("%s:%s:%s", t.prefix, activityID, status)
}

// Add counts a record.
func (t *Tally) Add(ctx context.Context, rec Record) error {
	if err := t.client.SAdd(ctx, t.key(rec.ActivityID, rec.Status), rec.ParticipantID).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Summary returns the counts for an activity.
func (t *Tally) Summary(ctx context.Context, activityID string) (Summary, error) {
	pipe := t.client.Pipeline()
	present := pipe.SCard(ctx, t.key(activityID, window.Present))
	late := pipe.SCard(ctx, t.key(activityID, window.Late))
	if _, err := pipe.Exec(ctx); err != nil {
		return Summary{}, unavailable(err)
	}
	return Summary{ActivityID: activityID, Present: present.Val(), Late: late.Val()}, nil
}
