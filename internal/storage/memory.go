package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Saved documents are kept encoded, so Load
// goes through the same decode path as the persistent drivers.
type Memory struct {
	mu  sync.RWMutex
	raw []byte

	saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raw == nil {
		return Document{}, nil
	}
	doc, _ := decodeDocument(m.raw)
	return doc, nil
}

func (m *Memory) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = b
	m.saves++
	m.mu.Unlock()
	return nil
}

// SetRaw replaces the stored bytes verbatim, e.g. with a legacy or corrupt document.
func (m *Memory) SetRaw(b []byte) {
	m.mu.Lock()
	m.raw = append([]byte(nil), b...)
	m.mu.Unlock()
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Memory) Export(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raw == nil {
		return nil, false, nil
	}
	return append([]byte(nil), m.raw...), true, nil
}

func (m *Memory) Close() error { return nil }
