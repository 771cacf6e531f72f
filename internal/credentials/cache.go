package credentials

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const CacheTTL = 5 * time.Second

type cachedSecret struct {
	value    string
	err      error
	cachedAt time.Time
}

// Cache is a read-through cache over a Store. Both resolved secrets and
// resolution failures are kept for CacheTTL; writes and deletes through the
// cache drop the slot immediately.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	slots map[string]cachedSecret
	// gens counts invalidations per name; a read that raced one is not cached.
	gens map[string]uint64
}

func NewCache(store Store) *Cache {
	return &Cache{
		store: store,
		ttl:   CacheTTL,
		now:   time.Now,
		slots: make(map[string]cachedSecret),
		gens:  make(map[string]uint64),
	}
}

// SetClock replaces time.Now, mainly for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the resolved secret for name. Env references are expanded
// before the value is cached.
func (c *Cache) Get(name string) (string, error) {
	c.mu.Lock()
	if slot, ok := c.slots[name]; ok && c.now().Sub(slot.cachedAt) < c.ttl {
		c.mu.Unlock()
		return slot.value, slot.err
	}
	gen := c.gens[name]
	c.mu.Unlock()

	value, err := c.read(name)

	c.mu.Lock()
	if c.gens[name] == gen {
		c.slots[name] = cachedSecret{value: value, err: err, cachedAt: c.now()}
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("credentials level=info event=resolve_failed name=%s error=%q", name, err)
	}
	return value, err
}

// Has reports whether name currently resolves to a usable secret.
func (c *Cache) Has(name string) bool {
	_, err := c.Get(name)
	return err == nil
}

func (c *Cache) Set(name, value string) error {
	if err := c.store.Set(name, []byte(value)); err != nil {
		return err
	}
	c.Invalidate(name)
	return nil
}

func (c *Cache) Delete(name string) error {
	err := c.store.Delete(name)
	c.Invalidate(name)
	return err
}

func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[name]++
	delete(c.slots, name)
}

func (c *Cache) read(name string) (string, error) {
	raw, err := c.store.Get(name)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("credentials: %s is not valid UTF-8", name)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}
	return ResolveEnvReference(value)
}
