// Package attributes stores per-connection key/value bags that outlive any
// single frame handler. The Redis store lets another process recover them.
package attributes

import (
	"context"
	"sync"
)

// Bag is the attribute set of one connection.
type Bag interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Provider hands out the bag for a connection id. Two calls with the same id
// address the same data.
type Provider interface {
	Bag(connID string) Bag
}

// MemoryProvider keeps bags in process memory.
type MemoryProvider struct {
	mu   sync.RWMutex
	bags map[string]map[string]string
}

// NewMemoryProvider creates an empty in-process provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{bags: make(map[string]map[string]string)}
}

// Bag returns a handle on connID's attributes.
func (p *MemoryProvider) Bag(connID string) Bag {
	return &memoryBag{p: p, id: connID}
}

// Len reports how many connections currently hold attributes.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bags)
}

type memoryBag struct {
	p  *MemoryProvider
	id string
}

func (b *memoryBag) Get(_ context.Context, key string) (string, bool, error) {
	b.p.mu.RLock()
	defer b.p.mu.RUnlock()
	v, ok := b.p.bags[b.id][key]
	return v, ok, nil
}

func (b *memoryBag) Set(_ context.Context, key, value string) error {
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	attrs, ok := b.p.bags[b.id]
	if !ok {
		attrs = make(map[string]string)
		b.p.bags[b.id] = attrs
	}
	attrs[key] = value
	return nil
}

func (b *memoryBag) Clear(_ context.Context) error {
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	delete(b.p.bags, b.id)
	return nil
}
