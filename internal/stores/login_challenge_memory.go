package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryLoginChallengeStore is the single-process counterpart of
// LoginChallengeStore.
type MemoryLoginChallengeStore struct {
	mu      sync.Mutex
	records map[string]LoginChallengeRecord
	now     func() time.Time
}

func NewMemoryLoginChallengeStore() *MemoryLoginChallengeStore {
	return &MemoryLoginChallengeStore{
		records: make(map[string]LoginChallengeRecord),
		now:     time.Now,
	}
}

func (s *MemoryLoginChallengeStore) Save(_ context.Context, id string, record *LoginChallengeRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	if _, ok := s.records[id]; ok {
		return ErrChallengeExists
	}
	s.records[id] = *record
	return nil
}

func (s *MemoryLoginChallengeStore) Get(_ context.Context, id string) (*LoginChallengeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	if record.Expired(s.now()) {
		delete(s.records, id)
		return nil, ErrChallengeExpired
	}
	out := record
	return &out, nil
}

func (s *MemoryLoginChallengeStore) Consume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *MemoryLoginChallengeStore) RecordFailure(_ context.Context, id string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return false, ErrChallengeNotFound
	}
	if record.Expired(s.now()) {
		delete(s.records, id)
		return false, ErrChallengeExpired
	}

	record.Attempts++
	if int(record.Attempts) >= maxAttempts {
		delete(s.records, id)
		return true, nil
	}
	s.records[id] = record
	return false, nil
}

func (s *MemoryLoginChallengeStore) pruneLocked() {
	now := s.now()
	for id, record := range s.records {
		if record.Expired(now) {
			delete(s.records, id)
		}
	}
}
