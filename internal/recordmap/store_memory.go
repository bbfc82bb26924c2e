package recordmap

import (
	"context"
	"sync"

	"ticketeer/pkg/platform/sentinel"
)

// MemoryStore keeps rows in memory. It favors clarity over performance and
// backs the unit suites the same way the SQL store backs production.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, cloneRow(row))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, idColumn string, id any) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row[idColumn] == id {
			return cloneRow(row), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, filter Row) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Row
	for _, row := range s.rows {
		if matches(row, filter) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, idColumn string, id any, cols Row) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row[idColumn] == id {
			for col, v := range cols {
				row[col] = v
			}
			return true, nil
		}
	}
	return false, nil
}

func matches(row, filter Row) bool {
	for col, v := range filter {
		if row[col] != v {
			return false
		}
	}
	return true
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for col, v := range row {
		out[col] = v
	}
	return out
}
