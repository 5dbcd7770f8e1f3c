package testutil

import (
	"sync"

	"grs-go/internal/grs"
)

// MemoryStore is an in-memory record store. SaveErr, when set, makes
// every write fail.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]grs.Record

	SaveErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]grs.Record)}
}

func (s *MemoryStore) Load() (map[string]grs.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]grs.Record, len(s.records))
	for url, rec := range s.records {
		out[url] = rec
	}
	return out, nil
}

func (s *MemoryStore) Save(records map[string]grs.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	out := make(map[string]grs.Record, len(records))
	for url, rec := range records {
		rec.Sanitize()
		out[url] = rec
	}
	s.records = out
	return nil
}

func (s *MemoryStore) Update(url string, mutate func(*grs.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	rec := s.records[url]
	mutate(&rec)
	rec.Sanitize()
	s.records[url] = rec
	return nil
}

// Get returns the stored record for url and whether it exists.
func (s *MemoryStore) Get(url string) (grs.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	return rec, ok
}

var _ grs.Store = (*MemoryStore)(nil)
