package http

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultRetain is the number of batches kept per signal.
const DefaultRetain = 50

// Batch is one accepted ingestion request.
type Batch struct {
	Signal     string            `json:"signal"`
	Token      string            `json:"-"`
	ReceivedAt time.Time         `json:"receivedAt"`
	Encrypted  bool              `json:"encrypted"`
	Compressed bool              `json:"compressed"`
	Records    []json.RawMessage `json:"records"`
}

// Store keeps the most recent batches per signal in memory.
type Store struct {
	mu      sync.RWMutex
	retain  int
	batches map[string][]Batch
	totals  map[string]int
}

// NewStore creates a store that keeps the last retain batches per signal.
func NewStore(retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{
		retain:  retain,
		batches: make(map[string][]Batch),
		totals:  make(map[string]int),
	}
}

// Add appends b, evicting the oldest batch of its signal when full.
func (s *Store) Add(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.batches[b.Signal], b)
	if len(list) > s.retain {
		list = append([]Batch(nil), list[len(list)-s.retain:]...)
	}
	s.batches[b.Signal] = list
	s.totals[b.Signal] += len(b.Records)
}

// Batches returns the retained batches for signal, oldest first.
func (s *Store) Batches(signal string) []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Batch(nil), s.batches[signal]...)
}

// Records returns every retained record for signal, oldest first.
func (s *Store) Records(signal string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []json.RawMessage
	for _, b := range s.batches[signal] {
		out = append(out, b.Records...)
	}
	return out
}

// Total returns the number of records ever accepted for signal.
func (s *Store) Total(signal string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals[signal]
}
