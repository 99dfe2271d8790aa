package lockout

import (
	"context"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (s *InMemoryStore) RecordFailure(_ context.Context, key string, now time.Time, window time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{Key: key, WindowStart: now}
		s.records[key] = rec
	}
	if !now.Before(rec.WindowStart.Add(window)) {
		rec.Failures = 0
		rec.WindowStart = now
	}
	rec.Failures++
	c := *rec
	return &c, nil
}

func (s *InMemoryStore) Lock(_ context.Context, key string, until, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &Record{Key: key, WindowStart: now, LockedUntil: &until}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
