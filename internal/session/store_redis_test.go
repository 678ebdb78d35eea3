package session

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-walkthrough/internal/platform/cache"
)

func TestNewRedisStore_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:59999"})
	defer client.Close()

	tests := []struct {
		name    string
		cache   *cache.Cache
		ttl     time.Duration
		wantErr bool
	}{
		{"nil cache", nil, time.Hour, true},
		{"zero ttl", cache.Wrap(client, cache.DefaultPrefix), 0, true},
		{"ok", cache.Wrap(client, cache.DefaultPrefix), time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisStore(tt.cache, tt.ttl)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRedisStore() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedisStore_Keys(t *testing.T) {
	s := &RedisStore{cache: cache.Wrap(nil, cache.DefaultPrefix), ttl: time.Hour}

	if got := s.sessionKey("abc"); got != "walk:session:abc" {
		t.Errorf("sessionKey() = %q", got)
	}
	if got := s.activeKey("telegram:42"); got != "walk:active:telegram:42" {
		t.Errorf("activeKey() = %q", got)
	}
}

func TestRedisStore_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:59999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store, err := NewRedisStore(cache.Wrap(client, cache.DefaultPrefix), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	if _, err := store.CreateSession(Session{UserID: "u"}); err == nil {
		t.Error("CreateSession() should fail when redis is unreachable")
	}
	if _, found := store.GetActiveSession("u"); found {
		t.Error("GetActiveSession() should report not found when redis is unreachable")
	}
}

func TestRedisStore_GetActiveSession_LogsReadError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:59999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store, err := NewRedisStore(cache.Wrap(client, cache.DefaultPrefix), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	if _, found := store.GetActiveSession("telegram:7"); found {
		t.Fatal("GetActiveSession() should report not found when redis is unreachable")
	}

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "failed to read active session") {
		t.Errorf("expected an error log for the failed read, got %q", out)
	}
	if !strings.Contains(out, "user_id=telegram:7") {
		t.Errorf("error log should name the user, got %q", out)
	}
}
