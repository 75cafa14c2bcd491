package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"hwgrader/internal/config"
	"hwgrader/internal/models"
	"hwgrader/internal/redis"
)

func sampleSession(ttl time.Duration, now time.Time) *models.EvaluationSession {
	eval := models.Evaluation{Score: 7, MaxScore: 10, Feedback: "Good attempt.", Outcome: models.OutcomeParsed}
	return NewSession("Q1. Define osmosis.", "Osmosis moves water.", eval, ttl, now)
}

func TestNewSessionAssignsIDAndExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := sampleSession(time.Hour, now)
	if !ValidID(s.ID) {
		t.Fatalf("expected uuid id, got %q", s.ID)
	}
	if !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", s.ExpiresAt)
	}
	if ValidID("../etc/passwd") {
		t.Fatalf("garbage id accepted")
	}
}

func TestMemoryStoreSaveGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := sampleSession(time.Hour, time.Now())

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StudentText != s.StudentText || got.Evaluation.Score != 7 {
		t.Fatalf("session mismatch: %+v", got)
	}

	got.StudentText = "mutated"
	again, _ := store.Get(ctx, s.ID)
	if again.StudentText == "mutated" {
		t.Fatalf("store returned shared pointer")
	}

	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()
	store.now = func() time.Time { return base }
	ctx := context.Background()

	expired := sampleSession(time.Minute, base.Add(-2*time.Minute))
	live := sampleSession(time.Hour, base)
	_ = store.Save(ctx, expired)
	_ = store.Save(ctx, live)

	if _, err := store.Get(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	_ = store.Save(ctx, expired)
	if n := store.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, err := store.Get(ctx, live.ID); err != nil {
		t.Fatalf("live session lost: %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, cleanup := newRedisStore(t)
	defer cleanup()
	ctx := context.Background()

	s := sampleSession(time.Minute, time.Now())
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.QuestionText != s.QuestionText || got.Evaluation.Feedback != "Good attempt." {
		t.Fatalf("session mismatch: %+v", got)
	}
	ttl, err := store.client.TTL(ctx, sessionKey(s.ID))
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v (%v)", ttl, err)
	}

	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRejectsExpiredSession(t *testing.T) {
	store, cleanup := newRedisStore(t)
	defer cleanup()

	s := sampleSession(time.Minute, time.Now().Add(-time.Hour))
	if err := store.Save(context.Background(), s); err == nil {
		t.Fatalf("expected error saving expired session")
	}
}

func newRedisStore(t *testing.T) (*RedisStore, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed session tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := redis.NewRedisClient(config.RedisConfig{Host: host, Port: port, DB: db})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	return NewRedisStore(client), func() { client.Close() }
}
