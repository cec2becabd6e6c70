// Package querycache is the process-wide cache of fetched lists and
// records shared by order-form sessions. Entries are stored msgpack-encoded
// so readers never share mutable values with each other or with writers.
package querycache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Well-known keys
const (
	KeyOrders       = "orders"
	KeyAuthors      = "authors"
	KeyAffiliations = "affiliations"
	KeyCategories   = "categories"
	KeyForms        = "forms"
	KeyEvents       = "events"
)

// OrderKey is the detail key for one order.
func OrderKey(id int64) string {
	return fmt.Sprintf("order/%d", id)
}

type entry struct {
	data     []byte
	storedAt time.Time
}

// Cache is a keyed store of msgpack-encoded values. A zero TTL keeps
// entries until they are invalidated.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	log     zerolog.Logger
}

// New creates an empty cache
func New(ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		log:     log.With().Str("component", "querycache").Logger(),
	}
}

// Get decodes the entry for key into out. Returns false when the key is
// missing or expired.
func (c *Cache) Get(key string, out interface{}) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return false, nil
	}
	if err := msgpack.Unmarshal(e.data, out); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key.
func (c *Cache) Set(key string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// Invalidate removes every key equal to a prefix or nested under it
// ("order" removes "order/7" and "order?page=2", not "orders"). Returns the
// removed keys, sorted.
func (c *Cache) Invalidate(prefixes ...string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for key := range c.entries {
		for _, p := range prefixes {
			if matches(key, p) {
				delete(c.entries, key)
				removed = append(removed, key)
				break
			}
		}
	}
	sort.Strings(removed)

	if len(removed) > 0 {
		c.log.Debug().Strs("keys", removed).Msg("Invalidated cache entries")
	}
	return removed
}

func matches(key, prefix string) bool {
	if key == prefix {
		return true
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	next := key[len(prefix)]
	return next == '/' || next == '?'
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}

// Snapshot captures the current state of keys, absence included, so it
// can be put back with Restore.
type Snapshot struct {
	entries map[string]*entry
}

// Keys lists the captured keys, sorted.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot captures keys.
func (c *Cache) Snapshot(keys ...string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{entries: make(map[string]*entry, len(keys))}
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			copied := e
			s.entries[k] = &copied
		} else {
			s.entries[k] = nil
		}
	}
	return s
}

// Restore puts every captured key back the way it was, deleting keys that
// did not exist when the snapshot was taken.
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range s.entries {
		if e == nil {
			delete(c.entries, k)
			continue
		}
		c.entries[k] = *e
	}
}

// Fetch returns the cached value for key, calling loader on a miss.
// Concurrent misses for the same key share one load.
func Fetch[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if ok, err := c.Get(key, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		c.Invalidate(key)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, loaded); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache loaded value")
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
