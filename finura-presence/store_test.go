package finurapresence

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryStore struct {
	mu        sync.Mutex
	active    map[string]bool
	failList  bool
	failBatch bool
	failIDs   map[string]bool
	batches   int
}

func newMemoryStore(active ...string) *memoryStore {
	s := &memoryStore{active: map[string]bool{}, failIDs: map[string]bool{}}
	for _, id := range active {
		s.active[id] = true
	}
	return s
}

func (s *memoryStore) ids(onlyActive bool) []string {
	var ids []string
	for id, active := range s.active {
		if active || !onlyActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *memoryStore) ListActive(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("connection refused")
	}
	return s.ids(true), nil
}

func (s *memoryStore) ListAll(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("connection refused")
	}
	return s.ids(false), nil
}

func (s *memoryStore) Deactivate(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.failBatch {
		return 0, errors.New("batch failed")
	}
	var n int64
	for _, id := range ids {
		if s.active[id] {
			s.active[id] = false
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) SetActive(_ context.Context, id string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return false, errors.New("row locked")
	}
	if _, ok := s.active[id]; !ok {
		return false, nil
	}
	s.active[id] = active
	return true, nil
}

func (s *memoryStore) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}
