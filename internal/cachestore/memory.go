package cachestore

import (
	"context"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryItem struct {
	key  Key
	resp *Response
	seq  uint64
}

type memoryPartition struct {
	name       string
	generation string
	createdAt  time.Time
	seq        uint64

	// mu makes PutAll visible as a unit; go-cache guards individual items.
	mu    sync.RWMutex
	items *gocache.Cache
}

// MemoryStore keeps partitions in process memory. Entries never expire.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
	order      []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*memoryPartition)}
}

// Open returns the named partition, creating it if needed.
func (s *MemoryStore) Open(_ context.Context, name, generation string) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	p := &memoryPartition{
		name:       name,
		generation: generation,
		createdAt:  time.Now(),
		items:      gocache.New(gocache.NoExpiration, 0),
	}
	s.partitions[name] = p
	s.order = append(s.order, name)
	return p, nil
}

// Has reports whether name exists.
func (s *MemoryStore) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.partitions[name]
	return ok, nil
}

// Keys lists partitions in creation order.
func (s *MemoryStore) Keys(_ context.Context) ([]PartitionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PartitionInfo, 0, len(s.order))
	for _, name := range s.order {
		p := s.partitions[name]
		out = append(out, PartitionInfo{Name: p.name, Generation: p.generation, CreatedAt: p.createdAt})
	}
	return out, nil
}

// Delete drops a partition. Handles already opened keep working detached.
func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[name]
	if !ok {
		return false, nil
	}
	delete(s.partitions, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	p.items.Flush()
	return true, nil
}

// Match searches every partition in creation order.
func (s *MemoryStore) Match(ctx context.Context, key Key) (*Response, bool, error) {
	s.mu.RLock()
	parts := make([]*memoryPartition, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, s.partitions[name])
	}
	s.mu.RUnlock()

	for _, p := range parts {
		if resp, ok, _ := p.Match(ctx, key); ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func (p *memoryPartition) Name() string       { return p.name }
func (p *memoryPartition) Generation() string { return p.generation }

func (p *memoryPartition) Match(_ context.Context, key Key) (*Response, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.items.Get(key.Hash())
	if !ok {
		return nil, false, nil
	}
	return v.(*memoryItem).resp.Clone(), true, nil
}

func (p *memoryPartition) set(key Key, resp *Response) {
	stored := resp.Clone()
	stored.StoredAt = time.Now()
	p.seq++
	p.items.Set(key.Hash(), &memoryItem{key: key, resp: stored, seq: p.seq}, gocache.NoExpiration)
}

func (p *memoryPartition) Put(_ context.Context, key Key, resp *Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(key, resp)
	return nil
}

func (p *memoryPartition) PutAll(_ context.Context, entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		p.set(e.Key, e.Response)
	}
	return nil
}

func (p *memoryPartition) Delete(_ context.Context, key Key) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := key.Hash()
	if _, ok := p.items.Get(h); !ok {
		return false, nil
	}
	p.items.Delete(h)
	return true, nil
}

func (p *memoryPartition) Keys(_ context.Context) ([]Key, error) {
	p.mu.RLock()
	all := p.items.Items()
	p.mu.RUnlock()

	items := make([]*memoryItem, 0, len(all))
	for _, it := range all {
		items = append(items, it.Object.(*memoryItem))
	}
	slices.SortFunc(items, func(a, b *memoryItem) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	keys := make([]Key, len(items))
	for i, it := range items {
		keys[i] = it.key
	}
	return keys, nil
}
