package events

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for an event id.
var ErrNotFound = errors.New("event record not found")

// Record is the per-event correlation state.
type Record struct {
	// ID is the Frigate event id.
	ID string `json:"id"`
	// Camera is the camera that reported the event.
	Camera string `json:"camera"`
	// ImagesSent counts snapshot notifications delivered for the event.
	ImagesSent int `json:"images_sent"`
	// CreatedAt is when the "new" message was handled.
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the operations the correlator needs on event records.
type Store interface {
	// Put creates or overwrites the record for rec.ID.
	Put(rec Record)
	// Get returns a copy of the record for id.
	Get(id string) (Record, bool)
	// IncrementImages bumps ImagesSent and returns the new value.
	IncrementImages(id string) (int, error)
	// Delete removes the record for id and reports whether it existed.
	Delete(id string) bool
	// Len returns the number of pending records.
	Len() int
	// List returns copies of all pending records ordered by id.
	List() []Record
}

// MemoryStore keeps records in a map guarded by a mutex.
type MemoryStore struct {
	// records maps event ids to their state.
	records map[string]*Record
	// mu protects records; the HTTP API reads while the event loop writes.
	mu sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Put creates or overwrites the record for rec.ID.
func (s *MemoryStore) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = &rec
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}

	return *rec, true
}

// IncrementImages bumps ImagesSent and returns the new value.
func (s *MemoryStore) IncrementImages(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, ErrNotFound
	}

	rec.ImagesSent++

	return rec.ImagesSent, nil
}

// Delete removes the record for id and reports whether it existed.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[id]
	delete(s.records, id)

	return ok
}

// Len returns the number of pending records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// List returns copies of all pending records ordered by id.
func (s *MemoryStore) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, 0, len(s.records))
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		result = append(result, *s.records[id])
	}

	return result
}
