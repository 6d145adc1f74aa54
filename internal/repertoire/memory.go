package repertoire

import (
	"context"
	"sync"

	"github.com/discochess/gambit/internal/fen"
)

// Compile-time check that Memory implements Book.
var _ Book = (*Memory)(nil)

// Memory is an in-memory Book keyed by normalized FEN.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemory creates an empty in-memory book.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

// Add appends entries for a position.
func (m *Memory) Add(fenStr string, entries ...Entry) error {
	key, err := fen.Normalize(fenStr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(m.entries[key], entries...)
	return nil
}

// Lookup returns the entries for a position.
func (m *Memory) Lookup(ctx context.Context, fenStr string) ([]Entry, error) {
	key, err := fen.Normalize(fenStr)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.entries[key]
	if !ok || len(entries) == 0 {
		return nil, ErrNotFound
	}
	return append([]Entry(nil), entries...), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
