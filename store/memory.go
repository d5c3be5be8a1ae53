package store

import (
	"container/list"
	"hash/maphash"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry is one tracked key. elem is its position in the shard's recency
// list and is nil when the registry is unbounded.
type entry[K comparable, V any] struct {
	key   K
	value V
	elem  *list.Element
}

// shard is one lock stripe of the registry.
type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lru     *list.List // front is most recently updated
	_       [40]byte   // keep neighbouring shard mutexes off one cache line
}

// Registry is a sharded in-memory map from key to per-key state.
// Entries are created lazily on first Update and only removed by Delete,
// DeleteFunc or LRU eviction; there is no background cleanup.
// It is safe for concurrent use.
type Registry[K comparable, V any] struct {
	init      func() V
	seed      maphash.Seed
	shards    []shard[K, V]
	perShard  int
	eviction  Eviction
	admission *rate.Limiter
	clock     func() time.Time
}

// New creates a registry. init builds the state of a key seen for the
// first time.
func New[K comparable, V any](init func() V, opts ...Option) *Registry[K, V] {
	cfg := config{shards: defaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shards <= 0 {
		cfg.shards = defaultShards
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	r := &Registry[K, V]{
		init:      init,
		seed:      maphash.MakeSeed(),
		shards:    make([]shard[K, V], cfg.shards),
		eviction:  cfg.eviction,
		admission: cfg.admission,
		clock:     cfg.clock,
	}
	if cfg.maxKeys > 0 {
		r.perShard = (cfg.maxKeys + cfg.shards - 1) / cfg.shards
	}

	for i := range r.shards {
		r.shards[i].entries = make(map[K]*entry[K, V])
		if r.perShard > 0 {
			r.shards[i].lru = list.New()
		}
	}

	return r
}

// Update runs fn on the state of key while holding the key's shard lock,
// creating the state first if the key is new. fn must not call back into
// the registry.
func (r *Registry[K, V]) Update(key K, fn func(v *V)) error {
	s := r.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		var err error
		if e, err = r.insert(s, key); err != nil {
			return err
		}
	} else if s.lru != nil {
		s.lru.MoveToFront(e.elem)
	}

	fn(&e.value)
	return nil
}

// insert adds a new entry to s. Caller holds s.mu.
func (r *Registry[K, V]) insert(s *shard[K, V], key K) (*entry[K, V], error) {
	if r.perShard > 0 && len(s.entries) >= r.perShard {
		if r.eviction != EvictLRU {
			return nil, ErrStoreFull
		}
	}

	if r.admission != nil && !r.admission.AllowN(r.clock(), 1) {
		return nil, ErrAdmissionDenied
	}

	if r.perShard > 0 && len(s.entries) >= r.perShard {
		if oldest := s.lru.Back(); oldest != nil {
			victim := oldest.Value.(*entry[K, V])
			s.lru.Remove(oldest)
			delete(s.entries, victim.key)
		}
	}

	e := &entry[K, V]{key: key, value: r.init()}
	if s.lru != nil {
		e.elem = s.lru.PushFront(e)
	}
	s.entries[key] = e
	return e, nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (r *Registry[K, V]) Delete(key K) {
	s := r.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		r.remove(s, e)
	}
}

// DeleteFunc removes every entry for which fn returns true and returns how
// many were removed. Shards are locked one at a time.
func (r *Registry[K, V]) DeleteFunc(fn func(key K, v *V) bool) int {
	removed := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			if fn(key, &e.value) {
				r.remove(s, e)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// remove deletes e from s. Caller holds s.mu.
func (r *Registry[K, V]) remove(s *shard[K, V], e *entry[K, V]) {
	if s.lru != nil {
		s.lru.Remove(e.elem)
	}
	delete(s.entries, e.key)
}

// Len returns the number of tracked keys.
func (r *Registry[K, V]) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// getShard returns the shard owning key.
func (r *Registry[K, V]) getShard(key K) *shard[K, V] {
	if len(r.shards) == 1 {
		return &r.shards[0]
	}
	idx := maphash.Comparable(r.seed, key) % uint64(len(r.shards))
	return &r.shards[idx]
}
