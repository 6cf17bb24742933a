package cache

import (
	"testing"
	"time"
)

func TestValueGetSet(t *testing.T) {
	c := NewValue[[]string](time.Minute)

	if _, ok := c.Get(); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set([]string{"a", "b"})
	got, ok := c.Get()
	if !ok || len(got) != 2 {
		t.Fatalf("expected hit with 2 items, got %v ok=%v", got, ok)
	}
}

func TestValueExpiry(t *testing.T) {
	c := NewValue[int](10 * time.Millisecond)
	c.Set(42)
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get(); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestValueInvalidate(t *testing.T) {
	c := NewValue[int](time.Minute)
	c.Set(1)
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Fatal("invalidated entry should miss")
	}
}
