package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryAuthCodeStore is the single-process counterpart of AuthCodeStore.
// A mutex serializes Redeem, which gives the same exactly-once guarantee
// within one process.
type MemoryAuthCodeStore struct {
	mu      sync.Mutex
	records map[string]AuthCodeRecord
	now     func() time.Time
}

func NewMemoryAuthCodeStore() *MemoryAuthCodeStore {
	return &MemoryAuthCodeStore{
		records: make(map[string]AuthCodeRecord),
		now:     time.Now,
	}
}

func (s *MemoryAuthCodeStore) Save(_ context.Context, code string, record *AuthCodeRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	if _, ok := s.records[code]; ok {
		return ErrCodeExists
	}
	s.records[code] = *record
	return nil
}

func (s *MemoryAuthCodeStore) Redeem(_ context.Context, code string) (*AuthCodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if record.Used {
		return nil, ErrCodeUsed
	}
	if record.Expired(s.now()) {
		delete(s.records, code)
		return nil, ErrCodeExpired
	}

	record.Used = true
	s.records[code] = record
	out := record
	return &out, nil
}

func (s *MemoryAuthCodeStore) pruneLocked() {
	now := s.now()
	for code, record := range s.records {
		if record.Expired(now) {
			delete(s.records, code)
		}
	}
}
