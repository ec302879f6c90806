package tunnel

import (
	"errors"
	"testing"
	"time"

	"github.com/usul27/pknx/knx"
)

func testGA(main, middle, sub uint8) knx.GroupAddress {
	return knx.GroupAddress{Main: main, Middle: middle, Sub: sub}
}

func TestCacheObserveAndRead(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)

	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01}))

	value, err := c.Read(ga, time.Minute)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if len(value) != 1 || value[0] != 0x01 {
		t.Fatalf("Read() = % X, want 01", value)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheReadRequestsDoNotMutate(t *testing.T) {
	c := NewCache(0)
	ga := testGA(5, 0, 1)

	c.Observe(knx.NewReadTelegram(ga))

	if _, err := c.Read(ga, time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Read() after read telegram = %v, want ErrCacheMiss", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestCacheResponseUpdates(t *testing.T) {
	c := NewCache(0)
	ga := testGA(5, 0, 1)

	c.Observe(knx.NewResponseTelegram(ga, []byte{0x0C, 0x33}))

	value, err := c.Read(ga, time.Minute)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if len(value) != 2 || value[0] != 0x0C || value[1] != 0x33 {
		t.Fatalf("Read() = % X, want 0C 33", value)
	}
}

func TestCacheMissUnknownAddress(t *testing.T) {
	c := NewCache(0)

	if _, err := c.Read(testGA(31, 7, 255), time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Read() = %v, want ErrCacheMiss", err)
	}
}

func TestCacheMaxAge(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)

	old := knx.NewWriteTelegram(ga, []byte{0x01})
	old.Timestamp = time.Now().Add(-time.Hour)
	c.Observe(old)

	if _, err := c.Read(ga, time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Read() with maxAge 1m = %v, want ErrCacheMiss", err)
	}
	if _, err := c.Read(ga, 2*time.Hour); err != nil {
		t.Fatalf("Read() with maxAge 2h = %v, want nil", err)
	}
}

func TestCacheMarkAllStale(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)

	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01}))
	c.MarkAllStale()

	if _, err := c.Read(ga, time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Read() after MarkAllStale = %v, want ErrCacheMiss", err)
	}

	// The value itself is retained for inspection.
	entry, ok := c.Get(ga)
	if !ok {
		t.Fatal("Get() = not found, want retained entry")
	}
	if !entry.Stale {
		t.Fatal("entry.Stale = false, want true")
	}

	// A fresh observation clears the stale flag.
	c.Observe(knx.NewWriteTelegram(ga, []byte{0x00}))
	if _, err := c.Read(ga, time.Minute); err != nil {
		t.Fatalf("Read() after re-observe = %v, want nil", err)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)
	other := testGA(1, 2, 4)

	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01}))
	c.Observe(knx.NewWriteTelegram(other, []byte{0x01}))
	c.Invalidate(ga)

	if _, err := c.Read(ga, time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Read() invalidated = %v, want ErrCacheMiss", err)
	}
	if _, err := c.Read(other, time.Minute); err != nil {
		t.Fatalf("Read() untouched = %v, want nil", err)
	}
}

func TestCacheValueIsolation(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)

	payload := []byte{0x01, 0x02}
	c.Observe(knx.NewWriteTelegram(ga, payload))
	payload[0] = 0xFF

	value, err := c.Read(ga, time.Minute)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if value[0] != 0x01 {
		t.Fatalf("cached value mutated: % X", value)
	}
}

func TestCacheReadReturnsCopy(t *testing.T) {
	c := NewCache(0)
	ga := testGA(1, 2, 3)
	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01, 0x02}))

	value, err := c.Read(ga, time.Minute)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	value[0] = 0xFF

	again, err := c.Read(ga, time.Minute)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if again[0] != 0x01 {
		t.Fatalf("caller mutation reached the cache: % X", again)
	}

	entry, ok := c.Get(ga)
	if !ok {
		t.Fatal("Get() missed a cached entry")
	}
	entry.Value[0] = 0xFF
	if fresh, _ := c.Get(ga); fresh.Value[0] != 0x01 {
		t.Fatalf("Get() shares storage with the cache: % X", fresh.Value)
	}
}

func TestCacheSubscribeSingleAddress(t *testing.T) {
	c := NewCache(4)
	ga := testGA(1, 2, 3)
	other := testGA(5, 0, 1)

	sub := c.Subscribe(ga)
	defer sub.Close()

	c.Observe(knx.NewWriteTelegram(other, []byte{0x01}))
	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01}))
	c.Observe(knx.NewWriteTelegram(ga, []byte{0x00}))

	first := <-sub.C
	second := <-sub.C
	if first.Address != ga || second.Address != ga {
		t.Fatalf("subscription leaked foreign address: %s, %s", first.Address, second.Address)
	}
	if first.Value[0] != 0x01 || second.Value[0] != 0x00 {
		t.Fatalf("updates out of order: % X then % X", first.Value, second.Value)
	}

	select {
	case entry := <-sub.C:
		t.Fatalf("unexpected extra update: %+v", entry)
	default:
	}
}

func TestCacheSubscribeAll(t *testing.T) {
	c := NewCache(4)

	sub := c.SubscribeAll()
	defer sub.Close()

	c.Observe(knx.NewWriteTelegram(testGA(1, 2, 3), []byte{0x01}))
	c.Observe(knx.NewWriteTelegram(testGA(5, 0, 1), []byte{0x02}))

	first := <-sub.C
	second := <-sub.C
	if first.Address != testGA(1, 2, 3) || second.Address != testGA(5, 0, 1) {
		t.Fatalf("updates out of order: %s then %s", first.Address, second.Address)
	}
}

func TestCacheSlowSubscriberDropsOldest(t *testing.T) {
	c := NewCache(2)
	ga := testGA(1, 2, 3)

	sub := c.Subscribe(ga)
	defer sub.Close()

	for i := 0; i < 4; i++ {
		c.Observe(knx.NewWriteTelegram(ga, []byte{byte(i)}))
	}

	// Buffer of 2, 4 updates: the two oldest are gone.
	first := <-sub.C
	second := <-sub.C
	if first.Value[0] != 2 || second.Value[0] != 3 {
		t.Fatalf("kept updates = %d, %d, want 2, 3", first.Value[0], second.Value[0])
	}
	if got := sub.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	if got := c.Drops(); got != 2 {
		t.Fatalf("Drops() = %d, want 2", got)
	}
}

func TestCacheClosedSubscriptionIgnored(t *testing.T) {
	c := NewCache(2)
	ga := testGA(1, 2, 3)

	sub := c.Subscribe(ga)
	sub.Close()
	sub.Close() // idempotent

	// Must not panic on a closed channel.
	c.Observe(knx.NewWriteTelegram(ga, []byte{0x01}))

	if _, ok := <-sub.C; ok {
		t.Fatal("closed subscription still delivered an update")
	}
}
