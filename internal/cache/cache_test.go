package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := New()

	c.Put("markets:BTC", []byte(`{"ok":true}`), time.Minute)
	v, ok := c.Get("markets:BTC")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"ok":true}`), v)

	_, ok = c.Get("markets:ETH")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := New()

	c.Put("short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestMemoryCacheListAndDelete(t *testing.T) {
	c := New()

	c.Put("ma:BTC:24h", []byte("a"), time.Minute)
	c.Put("ma:BTC:7d", []byte("b"), time.Minute)
	c.Put("arb:BTC", []byte("c"), time.Minute)

	keys := c.List("ma:")
	assert.Len(t, keys, 2)

	c.Delete("ma:BTC:24h")
	keys = c.List("ma:")
	assert.Len(t, keys, 1)
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c := New()

	c.Put("pin", []byte("v"), 0)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("pin")
	assert.True(t, ok)
}
