package fieldsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
)

// CachedSource wraps a FieldSource with in-memory LRU caches for lattice
// metadata and point values. Neighbouring units over the same dataset hit
// the same native cells, so most value lookups are served locally.
type CachedSource struct {
	inner    domain.FieldSource
	lattices *lruCache[domain.Lattice]
	values   *lruCache[domain.Value]
	metrics  *observability.Metrics
}

// NewCachedSource creates a cache decorator around a field source.
func NewCachedSource(inner domain.FieldSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:    inner,
		lattices: newLRUCache[domain.Lattice](maxEntries),
		values:   newLRUCache[domain.Value](maxEntries),
		metrics:  metrics,
	}
}

func fieldKeyString(k domain.FieldKey) string {
	return k.Dataset + "|" + k.Variable + "|" + k.Scenario + "|" + k.TimeLabel
}

// Field returns a caching view of the inner field. Lattice lookups that
// fail are not cached so transient errors can be retried.
func (c *CachedSource) Field(ctx context.Context, key domain.FieldKey) (domain.Field, error) {
	ks := fieldKeyString(key)
	if l, ok := c.lattices.get(ks); ok {
		c.metrics.FieldCache.WithLabelValues(kindLattice, "hit").Inc()
		return &cachedField{source: c, key: ks, lattice: l, resolve: c.resolver(key)}, nil
	}
	c.metrics.FieldCache.WithLabelValues(kindLattice, "miss").Inc()

	f, err := c.inner.Field(ctx, key)
	if err != nil {
		return nil, err
	}
	c.lattices.put(ks, f.Lattice())
	return &cachedField{source: c, key: ks, lattice: f.Lattice(), inner: f}, nil
}

// resolver lazily binds the inner field the first time a cached lattice
// entry needs a value the value cache does not hold.
func (c *CachedSource) resolver(key domain.FieldKey) func(context.Context) (domain.Field, error) {
	return func(ctx context.Context) (domain.Field, error) { return c.inner.Field(ctx, key) }
}

type cachedField struct {
	source  *CachedSource
	key     string
	lattice domain.Lattice

	mu      sync.Mutex
	inner   domain.Field
	resolve func(context.Context) (domain.Field, error)
}

func (f *cachedField) Lattice() domain.Lattice { return f.lattice }

func (f *cachedField) ValueAt(ctx context.Context, lat, lon float64) (domain.Value, error) {
	vk := fmt.Sprintf("%s@%.6f,%.6f", f.key, lat, lon)
	if v, ok := f.source.values.get(vk); ok {
		f.source.metrics.FieldCache.WithLabelValues(kindValue, "hit").Inc()
		return v, nil
	}
	f.source.metrics.FieldCache.WithLabelValues(kindValue, "miss").Inc()

	inner, err := f.field(ctx)
	if err != nil {
		return domain.Value{}, err
	}
	v, err := inner.ValueAt(ctx, lat, lon)
	if err != nil {
		return v, err
	}
	f.source.values.put(vk, v)
	return v, nil
}

func (f *cachedField) field(ctx context.Context) (domain.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inner != nil {
		return f.inner, nil
	}
	inner, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	f.inner = inner
	return inner, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
