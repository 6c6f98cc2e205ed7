package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *clock) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clk := newTestCache(4, time.Minute)
	c.Set("home", 1)

	v, ok := c.Get("home")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.advance(2 * time.Minute)
	_, ok = c.Get("home")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRUCache_NoTTL(t *testing.T) {
	c, clk := newTestCache(4, 0)
	c.Set("home", 1)
	clk.advance(24 * time.Hour)

	_, ok := c.Get("home")
	assert.True(t, ok)
	assert.Zero(t, c.CleanExpired())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	assert.Equal(t, 1, c.Size())

	c.Purge()
	assert.Zero(t, c.Size())
	c.Set("c", 3)
	assert.Equal(t, 1, c.Size())
}

func TestJanitor_Sweep(t *testing.T) {
	short, clk := newTestCache(4, time.Second)
	short.Set("a", 1)
	short.Set("b", 2)
	clk.advance(time.Minute)

	j := NewJanitor(nil)
	j.Register(short)

	assert.Equal(t, 2, j.Sweep())
	assert.Zero(t, short.Size())
}
