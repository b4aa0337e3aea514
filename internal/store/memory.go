package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	logs     []RunLog
	byID     map[string]int
	stats    Stats
	settings PIISettings
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[string]int),
		settings: DefaultPIISettings(),
	}
}

// prepare fills in the ID and timestamp.
func prepare(l RunLog) RunLog {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	if l.Status == "" {
		l.Status = "success"
	}
	return l
}

func (s *InMemoryStore) CreateRunLog(_ context.Context, l RunLog) (RunLog, error) {
	l = prepare(l)
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[l.ID]; ok {
		s.logs[idx] = l
		return l, nil
	}
	s.byID[l.ID] = len(s.logs)
	s.logs = append(s.logs, l)
	return l, nil
}

func (s *InMemoryStore) RunLogs(_ context.Context, limit int) ([]RunLog, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunLog, 0, min(limit, len(s.logs)))
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *InMemoryStore) RunLog(_ context.Context, id string) (RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return RunLog{}, ErrNotFound
	}
	return s.logs[idx], nil
}

func (s *InMemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *InMemoryStore) RecordRun(_ context.Context, detected int, elapsed time.Duration) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = s.stats.next(detected, elapsed.Milliseconds(), time.Now().UTC())
	return s.stats, nil
}

func (s *InMemoryStore) Settings(_ context.Context) (PIISettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *InMemoryStore) SaveSettings(_ context.Context, p PIISettings) (PIISettings, error) {
	p.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = p
	return p, nil
}

func (s *InMemoryStore) Close() error { return nil }
