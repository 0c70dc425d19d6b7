package directory

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Memory is an in-process directory, usually seeded from a YAML file.
type Memory struct {
	mu           sync.RWMutex
	activities   map[string]Activity
	participants map[string]Participant
}

// Seed is the YAML layout of a directory seed file.
type Seed struct {
	Activities   []Activity    `yaml:"activities"`
	Participants []Participant `yaml:"participants"`
}

// NewMemory creates an empty directory.
func NewMemory() *Memory {
	return &Memory{
		activities:   make(map[string]Activity),
		participants: make(map[string]Participant),
	}
}

// LoadFile reads a seed file into a new directory.
func LoadFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML seed into a new directory.
func Load(r io.Reader) (*Memory, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	m := NewMemory()
	for _, a := range seed.Activities {
		if err := m.PutActivity(a); err != nil {
			return nil, fmt.Errorf("activity %s: %w", a.ID, err)
		}
	}
	for _, p := range seed.Participants {
		m.PutParticipant(p)
	}
	return m, nil
}

// Seed returns the directory contents in seed form.
func (m *Memory) Seed() Seed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Seed
	for _, a := range m.activities {
		s.Activities = append(s.Activities, a)
	}
	for _, p := range m.participants {
		s.Participants = append(s.Participants, p)
	}
	return s
}

// PutActivity adds or replaces an activity.
func (m *Memory) PutActivity(a Activity) error {
	if err := a.Window.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
	return nil
}

// PutParticipant adds or replaces a participant.
func (m *Memory) PutParticipant(p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[p.ID] = p
}

func (m *Memory) GetActivity(_ context.Context, id string) (Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	return a, nil
}

func (m *Memory) GetParticipant(_ context.Context, id string) (Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	if !ok {
		return Participant{}, ErrParticipantNotFound
	}
	return p, nil
}
