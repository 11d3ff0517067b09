package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestResetTokens_IssueAndConsume(t *testing.T) {
	rdb := newMiniRedis(t)
	store := NewResetTokens(rdb, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	userID, err := store.Consume(ctx, token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}

	// 同一令牌第二次消费必须失败
	if _, err := store.Consume(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on reuse, got %v", err)
	}
}

func TestResetTokens_UnknownToken(t *testing.T) {
	rdb := newMiniRedis(t)
	store := NewResetTokens(rdb, time.Minute)

	if _, err := store.Consume(context.Background(), "deadbeef"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestResetTokens_Expiry(t *testing.T) {
	s, rdb := newMiniRedisWithServer(t)
	store := NewResetTokens(rdb, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestRevocationList(t *testing.T) {
	rdb := newMiniRedis(t)
	list := NewRevocationList(rdb)
	ctx := context.Background()

	revoked, err := list.IsRevoked(ctx, "tok")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("fresh token must not be revoked")
	}

	if err := list.Revoke(ctx, "tok", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	revoked, err = list.IsRevoked(ctx, "tok")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected token to be revoked")
	}
}

func TestRevocationList_ExpiredTTLIsNoop(t *testing.T) {
	rdb := newMiniRedis(t)
	list := NewRevocationList(rdb)
	ctx := context.Background()

	if err := list.Revoke(ctx, "old", -time.Second); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	revoked, err := list.IsRevoked(ctx, "old")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("expired token should not be stored")
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	_, rdb := newMiniRedisWithServer(t)
	return rdb
}

func newMiniRedisWithServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return s, rdb
}
