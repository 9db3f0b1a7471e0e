package availability_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campsite-reservation/internal/availability"
)

func newRedisIndex(t *testing.T) (*availability.RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return availability.NewRedisIndex(rdb, "test:availability"), mr
}

// indexes runs fn against every Index implementation.
func indexes(t *testing.T, fn func(t *testing.T, idx availability.Index)) {
	t.Run("memory", func(t *testing.T) { fn(t, availability.NewMemoryIndex()) })
	t.Run("redis", func(t *testing.T) {
		idx, _ := newRedisIndex(t)
		fn(t, idx)
	})
}

func mustBooked(t *testing.T, idx availability.Index, dates ...string) map[string]bool {
	t.Helper()
	got, err := idx.Booked(context.Background(), dates)
	if err != nil {
		t.Fatalf("booked: %v", err)
	}
	return got
}

func TestIndexIgnoresStaleVersions(t *testing.T) {
	indexes(t, func(t *testing.T, idx availability.Index) {
		ctx := context.Background()
		// v2 frees the date before the older v1 booking arrives.
		if err := idx.Apply(ctx, 2, []string{"2025-03-10"}, nil); err != nil {
			t.Fatalf("apply v2: %v", err)
		}
		if err := idx.Apply(ctx, 1, nil, []string{"2025-03-10"}); err != nil {
			t.Fatalf("apply v1: %v", err)
		}
		if mustBooked(t, idx, "2025-03-10")["2025-03-10"] {
			t.Fatal("stale booking must not resurrect a freed date")
		}

		if err := idx.Apply(ctx, 3, nil, []string{"2025-03-10"}); err != nil {
			t.Fatalf("apply v3: %v", err)
		}
		if !mustBooked(t, idx, "2025-03-10")["2025-03-10"] {
			t.Fatal("newer booking must apply")
		}
	})
}

func TestIndexApplyBookedWinsWithinJob(t *testing.T) {
	indexes(t, func(t *testing.T, idx availability.Index) {
		err := idx.Apply(context.Background(), 1,
			[]string{"2025-03-10", "2025-03-11"},
			[]string{"2025-03-11", "2025-03-12"})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		got := mustBooked(t, idx, "2025-03-10", "2025-03-11", "2025-03-12")
		if got["2025-03-10"] || !got["2025-03-11"] || !got["2025-03-12"] {
			t.Fatalf("unexpected state %v", got)
		}
	})
}

func TestIndexResetAndPrune(t *testing.T) {
	indexes(t, func(t *testing.T, idx availability.Index) {
		ctx := context.Background()
		_ = idx.Apply(ctx, 1, nil, []string{"2025-03-01", "2025-03-10"})
		_ = idx.Apply(ctx, 9, nil, []string{"2025-03-20"})

		// The snapshot at v4 is the whole truth, even against the v9 stamp
		// left by a ledger that no longer exists.
		if err := idx.Reset(ctx, 4, []string{"2025-03-01", "2025-03-15"}); err != nil {
			t.Fatalf("reset: %v", err)
		}
		got := mustBooked(t, idx, "2025-03-01", "2025-03-10", "2025-03-15", "2025-03-20")
		if !got["2025-03-01"] || got["2025-03-10"] || !got["2025-03-15"] || got["2025-03-20"] {
			t.Fatalf("unexpected state after reset %v", got)
		}

		// Updates the snapshot already covers are ignored, later ones apply.
		_ = idx.Apply(ctx, 3, nil, []string{"2025-03-10"})
		_ = idx.Apply(ctx, 5, []string{"2025-03-15"}, []string{"2025-03-20"})
		got = mustBooked(t, idx, "2025-03-10", "2025-03-15", "2025-03-20")
		if got["2025-03-10"] || got["2025-03-15"] || !got["2025-03-20"] {
			t.Fatalf("unexpected state after updates %v", got)
		}

		n, err := idx.Prune(ctx, "2025-03-11")
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 pruned date, got %d", n)
		}
	})
}

func TestRedisIndexResetStoresFloor(t *testing.T) {
	idx, mr := newRedisIndex(t)
	ctx := context.Background()
	_ = idx.Apply(ctx, 11, nil, []string{"2025-03-10"})
	if err := idx.Reset(ctx, 0, []string{"2025-03-20"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := mr.HGet("test:availability", "2025-03-10"); got != "" {
		t.Fatalf("reset must drop dates missing from the snapshot, found %q", got)
	}
	if got := mr.HGet("test:availability", "2025-03-20"); got != "1:0" {
		t.Fatalf("expected 1:0, got %q", got)
	}
	if got, _ := mr.Get("test:availability:floor"); got != "0" {
		t.Fatalf("expected floor 0, got %q", got)
	}
	if err := idx.Apply(ctx, 1, []string{"2025-03-20"}, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := mr.HGet("test:availability", "2025-03-20"); got != "0:1" {
		t.Fatalf("first commit after reset should apply, got %q", got)
	}
}

func TestRedisIndexEncoding(t *testing.T) {
	idx, mr := newRedisIndex(t)
	if err := idx.Apply(context.Background(), 7, nil, []string{"2025-03-10"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := mr.HGet("test:availability", "2025-03-10"); got != "1:7" {
		t.Fatalf("expected stored value 1:7, got %q", got)
	}
}

func TestRedisIndexUnavailable(t *testing.T) {
	idx, mr := newRedisIndex(t)
	mr.Close()
	if _, err := idx.Booked(context.Background(), []string{"2025-03-10"}); err == nil {
		t.Fatal("expected an error once redis is gone")
	}
}
