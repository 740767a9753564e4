// Package cache keeps decoded traces in memory so repeated step and event
// lookups do not re-read the capture file.
package cache

import (
	"sync"
	"time"

	"github.com/gfxreplay/gfxreplay/internal/bus"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
)

const defaultCapacity = 16

// LoadedTrace holds a decoded capture: the event sequence and its step
// segmentation.
type LoadedTrace struct {
	TraceID  string
	Sequence *sequence.EventSequence
	Steps    []*step.Step
}

// TraceCache is an LRU cache of loaded traces. Entries are invalidated by
// trace lifecycle events when attached to a bus.
type TraceCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	capacity int

	notifier *bus.Notifier
	subID    string
	done     chan struct{}
}

type cacheEntry struct {
	trace      *LoadedTrace
	lastAccess time.Time
}

// NewTraceCache creates a cache holding up to capacity traces.
func NewTraceCache(capacity int) *TraceCache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &TraceCache{
		entries:  make(map[string]*cacheEntry),
		capacity: capacity,
	}
}

// Get returns the loaded trace for id and marks it recently used.
func (c *TraceCache) Get(id string) (*LoadedTrace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastAccess = time.Now()
	return entry.trace, true
}

// Put stores a loaded trace, evicting the least recently used entry when
// the cache is full.
func (c *TraceCache) Put(trace *LoadedTrace) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[trace.TraceID]; !ok && len(c.entries) >= c.capacity {
		c.evictLRU()
	}
	c.entries[trace.TraceID] = &cacheEntry{
		trace:      trace,
		lastAccess: time.Now(),
	}
}

// Invalidate drops the entry for id, if present.
func (c *TraceCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len returns the number of cached traces.
func (c *TraceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// AttachBus subscribes the cache to trace lifecycle events. Deleting or
// re-registering a trace invalidates its cached entry.
func (c *TraceCache) AttachBus(n *bus.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifier != nil {
		return
	}

	c.notifier = n
	c.subID = "trace-cache"
	c.done = make(chan struct{})
	sub := n.Subscribe(c.subID, nil)

	go func() {
		for {
			select {
			case ev, ok := <-sub.Ch:
				if !ok {
					return
				}
				switch ev.Type {
				case bus.TraceDeleted, bus.TraceRegistered:
					c.Invalidate(ev.TraceID)
				}
			case <-c.done:
				return
			}
		}
	}()
}

// Close detaches the cache from the bus.
func (c *TraceCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifier != nil {
		close(c.done)
		c.notifier.Unsubscribe(c.subID)
		c.notifier = nil
	}
	return nil
}

// evictLRU removes the least recently accessed entry. Caller holds the lock.
func (c *TraceCache) evictLRU() {
	var lruKey string
	var lruTime time.Time

	for key, entry := range c.entries {
		if lruKey == "" || entry.lastAccess.Before(lruTime) {
			lruKey = key
			lruTime = entry.lastAccess
		}
	}
	if lruKey != "" {
		delete(c.entries, lruKey)
	}
}
