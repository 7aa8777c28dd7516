package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// getRedisStore connects to the Redis named by OPENBRIDGE_TEST_REDIS_URL.
// Skips the test when no instance is available.
func getRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("OPENBRIDGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OPENBRIDGE_TEST_REDIS_URL not set, skipping integration test")
	}
	store, err := NewRedisStore(context.Background(), url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", time.Minute)
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := getRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "resp_rt", sampleTurn()); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, err := store.Get(ctx, "resp_rt")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Response.ID != "resp_1" {
		t.Errorf("Response.ID = %q", got.Response.ID)
	}

	removed, err := store.Delete(ctx, "resp_rt")
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !removed {
		t.Error("Delete removed = false, want true")
	}
	if _, err := store.Get(ctx, "resp_rt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	removed, err = store.Delete(ctx, "resp_rt")
	if err != nil {
		t.Errorf("second Delete error: %v", err)
	}
	if removed {
		t.Error("second Delete removed = true, want false")
	}
}
