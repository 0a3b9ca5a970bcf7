package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"quiz-ranking-service/internal/domain"
)

func newCache(t *testing.T, ttl time.Duration) (*LeaderboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLeaderboardCache(client, ttl), mr
}

func standings() []domain.QuizStanding {
	return []domain.QuizStanding{{
		Rank:             1,
		UserID:           7,
		UserName:         "alice",
		BestScore:        decimal.RequireFromString("8.50"),
		MaxScore:         decimal.NewFromInt(10),
		Percentage:       decimal.RequireFromString("85"),
		FirstCompletedAt: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
		AttemptCount:     2,
	}}
}

func TestLeaderboardCacheRoundTrip(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, 3); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, 3, standings()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("leaderboard:quiz:3") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("leaderboard:quiz:3"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("ttl = %s, want between 60s and 66s", ttl)
	}

	got, ok, err := cache.Get(ctx, 3)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	want := standings()[0]
	if len(got) != 1 || got[0].UserID != want.UserID || !got[0].BestScore.Equal(want.BestScore) ||
		!got[0].FirstCompletedAt.Equal(want.FirstCompletedAt) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLeaderboardCacheExpiresAndInvalidates(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, 1, standings()); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, 1); ok {
		t.Fatalf("expected entry to expire")
	}

	if err := cache.Set(ctx, 1, standings()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("leaderboard:quiz:1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestLeaderboardCacheCorruptEntry(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	if err := mr.Set(Key(9), "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := cache.Get(context.Background(), 9); err == nil || ok {
		t.Fatalf("expected decode error, ok=%v err=%v", ok, err)
	}
}

func TestLeaderboardCacheDisabled(t *testing.T) {
	cache, mr := newCache(t, 0)
	if err := cache.Set(context.Background(), 1, standings()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mr.Exists(Key(1)) {
		t.Fatalf("zero ttl must not write")
	}
}

func TestLeaderboardCacheUnavailable(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	mr.Close()
	if _, _, err := cache.Get(context.Background(), 1); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestLeaderboardCacheStoresUnquotedDecimals(t *testing.T) {
	prev := decimal.MarshalJSONWithoutQuotes
	decimal.MarshalJSONWithoutQuotes = true
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = prev })

	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()
	if err := cache.Set(ctx, 4, standings()); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := mr.Get("leaderboard:quiz:4")
	if err != nil {
		t.Fatalf("read raw entry: %v", err)
	}
	if !strings.Contains(raw, `"bestScore":8.5`) {
		t.Fatalf("expected numeric decimals, got %s", raw)
	}

	got, ok, err := cache.Get(ctx, 4)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got[0].BestScore.Equal(decimal.RequireFromString("8.5")) || !got[0].Percentage.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("decoded = %+v", got[0])
	}
}
