package attendance

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Recorder for development and tests.
type Memory struct {
	mu      sync.Mutex
	records map[key]Record
}

type key struct {
	activityID    string
	participantID string
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{records: make(map[key]Record)}
}

// Exists reports whether a record exists for the pair.
func (m *Memory) Exists(_ context.Context, activityID, participantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key{activityID, participantID}]
	return ok, nil
}

// Create stores the record if the pair is absent.
func (m *Memory) Create(_ context.Context, rec Record) (Record, error) {
	rec, err := prepare(rec)
	if err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{rec.ActivityID, rec.ParticipantID}
	if _, ok := m.records[k]; ok {
		return Record{}, ErrDuplicate
	}
	m.records[k] = rec
	return rec, nil
}

// Get returns the record for the pair.
func (m *Memory) Get(_ context.Context, activityID, participantID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key{activityID, participantID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns an activity's records, oldest first.
func (m *Memory) List(_ context.Context, activityID string) ([]Record, error) {
	m.mu.Lock()
	var res []Record
	for k, rec := range m.records {
		if k.activityID == activityID {
			res = append(res, rec)
		}
	}
	m.mu.Unlock()
	sortRecords(res)
	return res, nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].RecordedAt.Equal(recs[j].RecordedAt) {
			return recs[i].ParticipantID < recs[j].ParticipantID
		}
		return recs[i].RecordedAt.Before(recs[j].RecordedAt)
	})
}
