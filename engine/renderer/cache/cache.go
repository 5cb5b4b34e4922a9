// Package cache implements a content-keyed, reference-counted cache for
// small immutable GPU objects such as samplers.
package cache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

// Descriptor is the key of a cache entry. Equal must compare every field
// that influences the created object.
type Descriptor[K any] interface {
	Equal(other K) bool
}

// Factory creates and destroys the objects held by a cache.
type Factory[K any, H comparable] interface {
	Create(desc K) (H, error)
	Destroy(handle H)
}

// FactoryFuncs adapts two functions to the Factory interface.
type FactoryFuncs[K any, H comparable] struct {
	CreateFn  func(desc K) (H, error)
	DestroyFn func(handle H)
}

func (f FactoryFuncs[K, H]) Create(desc K) (H, error) {
	return f.CreateFn(desc)
}

func (f FactoryFuncs[K, H]) Destroy(handle H) {
	if f.DestroyFn != nil {
		f.DestroyFn(handle)
	}
}

type Options struct {
	/** @brief Name used in diagnostics. */
	Name string
	/** @brief Number of live entries above which a warning is logged. 0 disables the check. */
	Ceiling int
	/** @brief Turns ceiling overflows and leaked entries into panics. */
	Checked bool
}

type entry[K any, H comparable] struct {
	key      K
	handle   H
	refCount int
}

// Cache deduplicates objects by descriptor. Lookups are a linear scan:
// caches of this kind hold a few dozen entries at most.
type Cache[K Descriptor[K], H comparable] struct {
	options Options
	factory Factory[K, H]

	mutex    sync.Mutex
	entries  []*entry[K, H]
	warned   bool
	shutdown bool
}

func New[K Descriptor[K], H comparable](factory Factory[K, H], options Options) *Cache[K, H] {
	if factory == nil {
		panic("cache: nil factory")
	}
	if options.Name == "" {
		options.Name = "cache"
	}
	return &Cache[K, H]{
		options: options,
		factory: factory,
	}
}

/**
 * @brief Returns the handle for desc, creating it if no entry with an equal
 * descriptor is live. Every successful call must be paired with a Release.
 */
func (c *Cache[K, H]) Acquire(desc K) (H, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.shutdown {
		panic(fmt.Sprintf("%s: Acquire after Shutdown", c.options.Name))
	}

	for _, e := range c.entries {
		if e.key.Equal(desc) {
			e.refCount++
			return e.handle, nil
		}
	}

	// creation runs under the lock so two racing misses cannot build duplicates
	handle, err := c.factory.Create(desc)
	if err != nil {
		var zero H
		return zero, fmt.Errorf("%s: failed to create entry: %w", c.options.Name, err)
	}
	c.entries = append(c.entries, &entry[K, H]{key: desc, handle: handle, refCount: 1})

	if c.options.Ceiling > 0 && len(c.entries) > c.options.Ceiling {
		if c.options.Checked {
			panic(fmt.Sprintf("%s: %d live entries exceed the ceiling of %d", c.options.Name, len(c.entries), c.options.Ceiling))
		}
		if !c.warned {
			core.LogWarn("%s: %d live entries exceed the ceiling of %d", c.options.Name, len(c.entries), c.options.Ceiling)
			c.warned = true
		}
	}
	return handle, nil
}

// Release drops one reference to handle and destroys it once unreferenced.
// Releasing a handle the cache does not hold panics.
func (c *Cache[K, H]) Release(handle H) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i, e := range c.entries {
		if e.handle != handle {
			continue
		}
		e.refCount--
		if e.refCount > 0 {
			return
		}
		c.factory.Destroy(e.handle)
		// keep insertion order for deterministic diagnostics
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		if c.options.Ceiling > 0 && len(c.entries) <= c.options.Ceiling {
			c.warned = false
		}
		return
	}
	panic(fmt.Sprintf("%s: Release of unknown handle %v", c.options.Name, handle))
}

/**
 * @brief Destroys every remaining entry. Producers must be quiesced first.
 * Entries still referenced are reported; the number of such entries is
 * returned. In checked mode a non-zero count panics after destruction.
 */
func (c *Cache[K, H]) Shutdown() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.shutdown {
		return 0
	}
	c.shutdown = true

	leaked := make([]string, 0)
	for _, e := range c.entries {
		if e.refCount > 0 {
			core.LogWarn("%s: entry %v destroyed with %d outstanding references", c.options.Name, e.handle, e.refCount)
			leaked = append(leaked, fmt.Sprintf("%v(refs=%d)", e.handle, e.refCount))
		}
		c.factory.Destroy(e.handle)
	}
	c.entries = nil

	if len(leaked) > 0 && c.options.Checked {
		panic(fmt.Sprintf("%s: leaked entries at shutdown: %s", c.options.Name, strings.Join(leaked, ", ")))
	}
	return len(leaked)
}

// Len returns the number of live entries.
func (c *Cache[K, H]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// RefCount returns the reference count of handle, or 0 if it is not live.
func (c *Cache[K, H]) RefCount(handle H) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, e := range c.entries {
		if e.handle == handle {
			return e.refCount
		}
	}
	return 0
}
