package cache

import (
	"context"
	"sync"
)

// MemoryBackend is a process-local Backend, mostly useful in tests and
// single-shot runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (b *MemoryBackend) Load(ctx context.Context, key string) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, nil
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	return &entry, nil
}

func (b *MemoryBackend) Save(ctx context.Context, entry *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := *entry
	stored.Payload = append([]byte(nil), entry.Payload...)
	b.entries[entry.Key] = stored
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
