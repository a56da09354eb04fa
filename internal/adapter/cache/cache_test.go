package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/cache"
)

// memCache is a simple map-backed cache for exercising the tiered logic.
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestTiered_L1Hit(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := cache.NewTiered(l1, l2, 5*time.Minute)
	ctx := context.Background()

	l1.data["key1"] = []byte("val1")

	val, found, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L1 hit")
	}
	if string(val) != "val1" {
		t.Fatalf("expected val1, got %s", val)
	}
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := cache.NewTiered(l1, l2, 5*time.Minute)
	ctx := context.Background()

	l2.data["key2"] = []byte("val2")

	val, found, err := c.Get(ctx, "key2")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L2 hit")
	}
	if string(val) != "val2" {
		t.Fatalf("expected val2, got %s", val)
	}

	l1Val, ok := l1.data["key2"]
	if !ok {
		t.Fatal("expected L1 backfill")
	}
	if string(l1Val) != "val2" {
		t.Fatalf("expected backfilled val2, got %s", l1Val)
	}
}

func TestTiered_Miss(t *testing.T) {
	c := cache.NewTiered(newMemCache(), newMemCache(), 5*time.Minute)

	_, found, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestTiered_DeleteBothLevels(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := cache.NewTiered(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatal("expected L1 delete")
	}
	if _, ok := l2.data["k"]; ok {
		t.Fatal("expected L2 delete")
	}
}

func TestLocal_SetGetDelete(t *testing.T) {
	l, err := cache.NewLocal(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	ctx := context.Background()

	if err := l.Set(ctx, "agent:1", []byte(`{"name":"bot"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	l.Wait()

	val, found, err := l.Get(ctx, "agent:1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit after Set")
	}
	if string(val) != `{"name":"bot"}` {
		t.Fatalf("unexpected value %s", val)
	}

	if err := l.Delete(ctx, "agent:1"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := l.Get(ctx, "agent:1"); found {
		t.Fatal("expected miss after Delete")
	}
}
