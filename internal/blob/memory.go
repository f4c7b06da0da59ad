package blob

import (
	"bytes"
	"fmt"
	"io"

	"filedepot/internal/core"
)

// MemoryStore is an in-memory implementation of the BlobStore interface,
// useful for testing. Like the engine it serves, it assumes a single
// cooperative caller.
type MemoryStore struct {
	blobs map[string][]byte // code -> content
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores size bytes from r under code.
func (m *MemoryStore) Put(code string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	m.blobs[code] = data
	return nil
}

// Get writes the blob for code into w.
func (m *MemoryStore) Get(code string, w io.Writer) error {
	data, ok := m.blobs[code]
	if !ok {
		return fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// ReadAll returns a copy of the blob for code.
func (m *MemoryStore) ReadAll(code string) ([]byte, error) {
	data, ok := m.blobs[code]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Remove deletes the blob for code.
func (m *MemoryStore) Remove(code string) error {
	if _, ok := m.blobs[code]; !ok {
		return fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
	}
	delete(m.blobs, code)
	return nil
}

// SweepOrphans removes blobs whose code is not in live.
func (m *MemoryStore) SweepOrphans(live []string) (int, error) {
	keep := make(map[string]struct{}, len(live))
	for _, code := range live {
		keep[code] = struct{}{}
	}

	removed := 0
	for code := range m.blobs {
		if _, ok := keep[code]; !ok {
			delete(m.blobs, code)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored blobs, for test assertions.
func (m *MemoryStore) Len() int { return len(m.blobs) }

// Compile-time check that MemoryStore implements core.BlobStore.
var _ core.BlobStore = (*MemoryStore)(nil)
