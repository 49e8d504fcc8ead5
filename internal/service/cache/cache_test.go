package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}
	svc, err := NewCacheService(CacheConfig{Host: mr.Host(), Port: port}, nil)
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mr
}

type payload struct {
	Name  string `json:"name"`
	Moves int    `json:"moves"`
}

func TestJSONRoundTrip(t *testing.T) {
	svc, _ := newTestCache(t)
	ctx := context.Background()

	in := payload{Name: "italian", Moves: 6}
	if err := svc.Set(ctx, "k1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out payload
	if err := svc.Get(ctx, "k1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestGetMissLeavesDestUntouched(t *testing.T) {
	svc, _ := newTestCache(t)

	out := payload{Name: "sentinel"}
	if err := svc.Get(context.Background(), "absent", &out); err != nil {
		t.Fatalf("Get miss: %v", err)
	}
	if out.Name != "sentinel" {
		t.Fatalf("dest mutated on miss: %+v", out)
	}
}

func TestDelRemovesKey(t *testing.T) {
	svc, mr := newTestCache(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "k1", payload{Name: "x"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := svc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if mr.Exists("k1") {
		t.Fatal("key still present after Del")
	}
	if err := svc.Del(ctx); err != nil {
		t.Fatalf("Del with no keys: %v", err)
	}
}

func TestStringAccessors(t *testing.T) {
	svc, mr := newTestCache(t)
	ctx := context.Background()

	if _, found, err := svc.GetString(ctx, "absent"); err != nil || found {
		t.Fatalf("GetString(absent) = found %v err %v", found, err)
	}

	if err := svc.SetString(ctx, "resume", "1. e4 e5", time.Minute); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	val, found, err := svc.GetString(ctx, "resume")
	if err != nil || !found {
		t.Fatalf("GetString = found %v err %v", found, err)
	}
	if val != "1. e4 e5" {
		t.Fatalf("GetString = %q", val)
	}

	// Empty string values are still distinguishable from misses.
	if err := svc.SetString(ctx, "empty", "", time.Minute); err != nil {
		t.Fatalf("SetString empty: %v", err)
	}
	if _, found, err := svc.GetString(ctx, "empty"); err != nil || !found {
		t.Fatalf("GetString(empty) = found %v err %v", found, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := svc.GetString(ctx, "resume"); found {
		t.Fatal("key survived past its TTL")
	}
}
