package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newMemoryStore(clock *testClock) *Store {
	return NewStore(
		NewMemoryTier(clock.Now),
		NewMemoryTier(clock.Now),
		StoreConfig{ProfileTTL: 30 * 24 * time.Hour},
		clock.Now,
	)
}

func testRecord(now time.Time) *Record {
	return &Record{
		ID:          "sid-1",
		UserID:      "u1",
		Fingerprint: "fp",
		CreatedAt:   now,
		ExpiresAt:   now.Add(30 * time.Minute),
	}
}

func TestStoreSaveLoadClear(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemoryStore(clock)
	ctx := context.Background()

	profile := Profile{Name: "Ana Silva", Email: "ana@example.com", Company: "Acme"}
	if err := store.Save(ctx, "tab-1", testRecord(clock.now), profile); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	rec, err := store.Load(ctx, "tab-1")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rec.ID != "sid-1" || rec.UserID != "u1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	got, err := store.Profile(ctx, "tab-1")
	if err != nil || got == nil || *got != profile {
		t.Fatalf("unexpected profile %+v err=%v", got, err)
	}

	if err := store.Clear(ctx, "tab-1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if err := store.Clear(ctx, "tab-1"); err != nil {
		t.Fatalf("second Clear must be a no-op, got %v", err)
	}
	if _, err := store.Load(ctx, "tab-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if p, err := store.Profile(ctx, "tab-1"); p != nil || err != nil {
		t.Fatalf("expected nil profile after clear, got %+v %v", p, err)
	}
}

func TestStoreRecordExpiresWithSession(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemoryStore(clock)
	ctx := context.Background()

	if err := store.Save(ctx, "c", testRecord(clock.now), Profile{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(31 * time.Minute)

	if _, err := store.Load(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected record to expire, got %v", err)
	}
	if p, _ := store.Profile(ctx, "c"); p == nil {
		t.Fatal("profile tier must outlive the session tier")
	}
}

func TestStoreClientsAreIsolated(t *testing.T) {
	clock := &testClock{now: time.Now()}
	store := newMemoryStore(clock)
	ctx := context.Background()

	_ = store.Save(ctx, "a", testRecord(clock.now), Profile{Name: "A"})
	if _, err := store.Load(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no session for other client, got %v", err)
	}
}

func TestRedisTierStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tier := NewRedisTier(rdb)
	now := time.Now()
	store := NewStore(tier, tier, StoreConfig{ProfileTTL: time.Hour}, func() time.Time { return now })
	ctx := context.Background()

	if err := store.Save(ctx, "c1", testRecord(now), Profile{Email: "ana@example.com"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if ttl := mr.TTL("as:c1"); ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Fatalf("unexpected session ttl %v", ttl)
	}
	if ttl := mr.TTL("ap:c1"); ttl != time.Hour {
		t.Fatalf("unexpected profile ttl %v", ttl)
	}

	if err := mr.Set("as:c1", "garbage"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "c1"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	mr.FastForward(time.Hour)
	if p, err := store.Profile(ctx, "c1"); p != nil || err != nil {
		t.Fatalf("expected expired profile, got %+v %v", p, err)
	}
}

func TestRedisTierUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	if _, err := NewRedisTier(rdb).Get(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
