package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

// MemoryStore keeps every bucket in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]value.Value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]value.Value)}
}

func (m *MemoryStore) Load(_ context.Context, bucket string) (value.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.buckets[bucket]
	return v, ok, nil
}

func (m *MemoryStore) Update(_ context.Context, bucket string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.buckets[bucket]
	next, keep, err := fn(old, ok)
	if err != nil {
		return err
	}
	if !keep {
		delete(m.buckets, bucket)
		return nil
	}
	m.buckets[bucket] = next
	return nil
}

func (m *MemoryStore) Buckets(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// MemoryBlobStore keeps blobs in memory. Safe for concurrent use.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

var _ storage.BinaryStorage = (*MemoryBlobStore)(nil)

func (m *MemoryBlobStore) Get(_ context.Context, p keypath.Path) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[p.String()]
	if !ok {
		return nil, storage.NotFound(p)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryBlobStore) Write(_ context.Context, p keypath.Path, r io.Reader) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[p.String()] = b
	return nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, p keypath.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, p.String())
	return nil
}
