package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLRU(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	_, ok := c.Get("u1")
	assert.False(t, ok)

	c.Set("u1", "doc-1")
	v, ok := c.Get("u1")
	assert.True(t, ok)
	assert.Equal(t, "doc-1", v)

	c.Set("u1", "doc-1b")
	v, _ = c.Get("u1")
	assert.Equal(t, "doc-1b", v)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB, "b was least recently used")
	assert.True(t, okC)
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	clk.advance(30 * time.Second)
	c.Set("c", "3")
	clk.advance(45 * time.Second)

	assert.Equal(t, 2, c.CleanExpired())
	assert.Equal(t, 1, c.Size())

	clk.advance(time.Minute)
	_, ok := c.Get("c")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_DeleteAndStats(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)

	c.Set("a", "1")
	c.Get("a")
	c.Delete("a")
	c.Get("a")

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 0, s.Size)
}

func TestManager_SweepRegisteredCaches(t *testing.T) {
	c, clk := newTestLRU(10, time.Second)
	c.Set("a", "1")
	clk.advance(2 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	m.Register(struct{}{})

	assert.Equal(t, 1, m.Sweep())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
