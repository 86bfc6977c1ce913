package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger. Its contents are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Closed implements Ledger.
func (m *Memory) Closed(_ context.Context, batchIDs []string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	closed := make(map[string]struct{})
	for _, id := range batchIDs {
		if _, ok := m.entries[id]; ok {
			closed[id] = struct{}{}
		}
	}
	return closed, nil
}

// Close implements Ledger.
func (m *Memory) Close(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if _, ok := m.entries[e.BatchID]; ok {
			continue
		}
		m.entries[e.BatchID] = e
	}
	return nil
}

// Entry returns the recorded entry for a batch.
func (m *Memory) Entry(batchID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[batchID]
	return e, ok
}

// Len returns the number of closed batches.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
