// Package memory is an in-process sheets.Exporter used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	ports "domu/internal/sheets"
)

var _ ports.Exporter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	rows    []ports.Row
	exports int
}

func New() *Store {
	return &Store{}
}

// Export replaces the stored rows and returns a synthetic reference.
func (s *Store) Export(ctx context.Context, rows []ports.Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = slices.Clone(rows)
	s.exports++
	return fmt.Sprintf("mem:%d:A1:E%d", s.exports, len(rows)+1), nil
}

// Rows returns the rows of the last export.
func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}
