// Package cache holds the single-slot TTL cache used in front of provider
// fetches. Each instance caches one kind of data (usage, tier) for one
// provider; expiry is lazy and there is no background eviction.
package cache

import (
	"log"
	"sync"
	"time"
)

const DefaultTTL = 30 * time.Second

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type ResponseCache[T any] struct {
	mu    sync.Mutex
	slot  *entry[T]
	ttl   time.Duration
	now   func() time.Time
	label string
}

type Option func(*options)

type options struct {
	now   func() time.Time
	label string
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLabel names the cache in log lines.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

func New[T any](ttl time.Duration, opts ...Option) *ResponseCache[T] {
	o := options{now: time.Now, label: "response"}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache[T]{ttl: ttl, now: o.now, label: o.label}
}

func (c *ResponseCache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value while it is fresh. Expired entries are masked
// but stay in the slot until the next Set.
func (c *ResponseCache[T]) Get() (value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.recoverAsMiss(&ok)

	if c.slot == nil || !c.now().Before(c.slot.expiresAt) {
		return value, false
	}
	return c.slot.value, true
}

func (c *ResponseCache[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.recoverAsMiss(nil)

	c.slot = &entry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *ResponseCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = nil
}

// recoverAsMiss turns a panic inside a critical section into an empty slot so
// later callers keep working.
func (c *ResponseCache[T]) recoverAsMiss(ok *bool) {
	r := recover()
	if r == nil {
		return
	}
	log.Printf("cache level=warn event=recovered label=%s panic=%v", c.label, r)
	c.slot = nil
	if ok != nil {
		*ok = false
	}
}
