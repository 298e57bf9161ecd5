package cache

import (
	"testing"
	"time"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Fatal("expected miss for unknown key")
	}

	c.Set("a", 1)
	v, found := c.Get("a")
	if !found || v != 1 {
		t.Fatalf("expected hit with 1, got %d found=%v", v, found)
	}

	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("expected overwrite to 2, got %d", v)
	}
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	// Touch a so b becomes the eviction candidate.
	c.Get("a")
	c.Set("c", "3")

	if _, found := c.Get("b"); found {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, found := c.Get("a"); !found {
		t.Error("expected recently used entry to survive")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, found := c.Get("a"); found {
		t.Error("expected entry to expire")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("a", 1)
	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("expected deleted entry to be gone")
	}

	// Deleting an absent key is a no-op.
	c.Delete("missing")
}

func TestLRUCache_CleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("fresh", 3)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("expected 2 entries cleaned, got %d", removed)
	}
	if c.Size() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Size())
	}
}
