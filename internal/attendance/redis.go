package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps one hash per activity, field = participant id. HSETNX
// makes Create a single conditional write.
type RedisRecorder struct {
	client *redis.Client
	prefix string
}

// NewRedisRecorder builds a recorder under the given key prefix.
func NewRedisRecorder(client *redis.Client, prefix string) *RedisRecorder {
	if prefix == "" {
		prefix = "attendance:records"
	}
	return &RedisRecorder{client: client, prefix: prefix}
}

func (r *RedisRecorder) key(activityID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, activityID)
}

// Exists reports whether a record exists for the pair.
func (r *RedisRecorder) Exists(ctx context.Context, activityID, participantID string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.key(activityID), participantID).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// Create stores the record if the pair is absent.
func (r *RedisRecorder) Create(ctx context.Context, rec Record) (Record, error) {
	rec, err := prepare(rec)
	if err != nil {
		return Record{}, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	set, err := r.client.HSetNX(ctx, r.key(rec.ActivityID), rec.ParticipantID, body).Result()
	if err != nil {
		return Record{}, unavailable(err)
	}
	if !set {
		return Record{}, ErrDuplicate
	}
	return rec, nil
}

// Get returns the record for the pair.
func (r *RedisRecorder) Get(ctx context.Context, activityID, participantID string) (Record, error) {
	body, err := r.client.HGet(ctx, r.key(activityID), participantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, unavailable(err)
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// List returns an activity's records, oldest first.
func (r *RedisRecorder) List(ctx context.Context, activityID string) ([]Record, error) {
	all, err := r.client.HGetAll(ctx, r.key(activityID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	res := make([]Record, 0, len(all))
	for participantID, body := range all {
		var rec Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", participantID, err)
		}
		res = append(res, rec)
	}
	sortRecords(res)
	return res, nil
}
