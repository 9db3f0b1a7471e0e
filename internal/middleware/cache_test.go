package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campsite-reservation/internal/config"
	"github.com/iliyamo/campsite-reservation/internal/middleware"
)

func TestRedisCacheServesRepeatReads(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: 2 * time.Second, Prefix: "cache", MaxBodyBytes: 1 << 20}
	calls := 0
	e := echo.New()
	e.GET("/v1/availability", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"available_dates": []string{"2025-03-10"}})
	}, middleware.NewRedisCache(cfg, rdb))

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/availability?start_date=2025-03-10&end_date=2025-03-11", nil))
		return rec
	}

	first := get()
	if first.Header().Get("X-Cache") != "MISS" || first.Code != http.StatusOK {
		t.Fatalf("expected MISS, got %q %d", first.Header().Get("X-Cache"), first.Code)
	}
	second := get()
	if second.Header().Get("X-Cache") != "HIT" || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical HIT, got %q %q", second.Header().Get("X-Cache"), second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler should run once, ran %d times", calls)
	}
	if ct := second.Header().Get(echo.HeaderContentType); ct != first.Header().Get(echo.HeaderContentType) {
		t.Fatalf("content type not restored: %q", ct)
	}

	mr.FastForward(3 * time.Second)
	if third := get(); third.Header().Get("X-Cache") != "MISS" || calls != 2 {
		t.Fatalf("entry should expire after TTL, got %q calls=%d", third.Header().Get("X-Cache"), calls)
	}
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Second, Prefix: "cache"}
	e := echo.New()
	e.GET("/v1/availability", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad"})
	}, middleware.NewRedisCache(cfg, rdb))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/availability", nil))
	if len(mr.Keys()) != 0 {
		t.Fatalf("error responses must not be cached, found %v", mr.Keys())
	}
}

func TestRedisCacheDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, middleware.NewRedisCache(config.CacheConfig{}, nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get("X-Cache") != "" || rec.Body.String() != "ok" {
		t.Fatalf("disabled cache should not touch the response, got %q", rec.Header().Get("X-Cache"))
	}
}
