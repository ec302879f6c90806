package tunnel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usul27/pknx/knx"
)

// CacheEntry is the last observed value for one group address.
type CacheEntry struct {
	Address    knx.GroupAddress
	Value      []byte
	ObservedAt time.Time
	Stale      bool
}

// Subscription is one subscriber's stream of cache updates. Updates
// arrive in bus order; a slow reader loses the oldest unread update
// rather than blocking other subscribers.
type Subscription struct {
	C <-chan CacheEntry

	ch      chan CacheEntry
	all     bool
	address uint16
	dropped atomic.Uint64
	cache   *Cache
	id      uint64
	once    sync.Once
}

// Dropped returns how many updates this subscriber has lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close cancels the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cache.closeSub(s)
	})
}

// Cache holds the last observed value per group address, populated
// passively from bus traffic. It is volatile: entries survive only in
// memory and are marked stale whenever the connection drops.
//
// Observe is called only from the dispatch loop (single writer); all
// read methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint16]CacheEntry
	subs    map[uint64]*Subscription
	nextSub uint64
	bufSize int

	drops atomic.Uint64
}

// NewCache creates an empty cache. bufSize is the per-subscriber
// update buffer; zero means the default.
func NewCache(bufSize int) *Cache {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	return &Cache{
		entries: make(map[uint16]CacheEntry),
		subs:    make(map[uint64]*Subscription),
		bufSize: bufSize,
	}
}

// Observe records a telegram. Only writes and responses carry state;
// read requests never mutate the cache.
func (c *Cache) Observe(t knx.Telegram) {
	if !t.IsWrite() && !t.IsResponse() {
		return
	}

	value := make([]byte, len(t.Data))
	copy(value, t.Data)

	entry := CacheEntry{
		Address:    t.Destination,
		Value:      value,
		ObservedAt: t.Timestamp,
		Stale:      false,
	}
	if entry.ObservedAt.IsZero() {
		entry.ObservedAt = time.Now()
	}

	key := t.Destination.ToUint16()

	// Fan-out happens under the lock: delivery is non-blocking, and
	// holding the lock keeps Close from racing a send on a closed
	// channel while preserving arrival order per subscriber.
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	for _, sub := range c.subs {
		if sub.all || sub.address == key {
			c.deliver(sub, entry)
		}
	}
}

// deliver fans one update out to a subscriber, dropping its oldest
// unread update on overflow so a stalled reader cannot block the bus.
// Caller holds c.mu.
func (c *Cache) deliver(sub *Subscription, entry CacheEntry) {
	select {
	case sub.ch <- entry:
		return
	default:
	}

	// Buffer full: evict the oldest unread update and count the loss.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		c.drops.Add(1)
	default:
	}

	select {
	case sub.ch <- entry:
	default:
		sub.dropped.Add(1)
		c.drops.Add(1)
	}
}

// Read returns the cached value for ga if an entry exists, is not
// stale, and was observed no longer than maxAge ago. Otherwise it
// fails with ErrCacheMiss.
func (c *Cache) Read(ga knx.GroupAddress, maxAge time.Duration) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[ga.ToUint16()]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s never observed", ErrCacheMiss, ga)
	}
	if entry.Stale {
		return nil, fmt.Errorf("%w: %s is stale", ErrCacheMiss, ga)
	}
	if time.Since(entry.ObservedAt) > maxAge {
		return nil, fmt.Errorf("%w: %s older than %s", ErrCacheMiss, ga, maxAge)
	}
	// Copy out so a caller mutating the result cannot corrupt the entry.
	return append([]byte(nil), entry.Value...), nil
}

// Get returns the entry for ga without any age bound, distinguishing
// "never seen" (ok=false) from "seen but possibly outdated". The
// returned entry's value is the caller's to keep.
func (c *Cache) Get(ga knx.GroupAddress) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ga.ToUint16()]
	if ok {
		entry.Value = append([]byte(nil), entry.Value...)
	}
	return entry, ok
}

// Invalidate marks the entry for ga stale without deleting it.
func (c *Cache) Invalidate(ga knx.GroupAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[ga.ToUint16()]; ok {
		entry.Stale = true
		c.entries[ga.ToUint16()] = entry
	}
}

// MarkAllStale marks every entry stale. Called on disconnect: the
// cache is rebuilt purely from observed traffic after reconnecting.
func (c *Cache) MarkAllStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		entry.Stale = true
		c.entries[key] = entry
	}
}

// Subscribe streams updates for one group address.
func (c *Cache) Subscribe(ga knx.GroupAddress) *Subscription {
	return c.subscribe(false, ga.ToUint16())
}

// SubscribeAll streams updates for every group address.
func (c *Cache) SubscribeAll() *Subscription {
	return c.subscribe(true, 0)
}

func (c *Cache) subscribe(all bool, address uint16) *Subscription {
	ch := make(chan CacheEntry, c.bufSize)
	sub := &Subscription{
		C:       ch,
		ch:      ch,
		all:     all,
		address: address,
		cache:   c,
	}

	c.mu.Lock()
	c.nextSub++
	sub.id = c.nextSub
	c.subs[sub.id] = sub
	c.mu.Unlock()

	return sub
}

func (c *Cache) closeSub(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	close(sub.ch)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Drops returns the total number of subscriber updates lost to overflow.
func (c *Cache) Drops() uint64 {
	return c.drops.Load()
}
