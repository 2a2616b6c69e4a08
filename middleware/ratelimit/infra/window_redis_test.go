package infra

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

func TestRedisWindowStore_SecondWriteRejected(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	prefix := "test:window:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	s := NewRedisWindowStore(rdb, testPolicies(), WithWindowPrefix(prefix))

	if !permit(t, s, "192.168.1.1", domain.ClassWrite).Allowed {
		t.Fatalf("expected first write to be allowed")
	}
	dec := permit(t, s, "192.168.1.1", domain.ClassWrite)
	if dec.Allowed {
		t.Fatalf("expected second write to be rejected")
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > 10*time.Second {
		t.Fatalf("expected RetryAfter within the window, got %s", dec.RetryAfter)
	}
	if !permit(t, s, "192.168.1.2", domain.ClassWrite).Allowed {
		t.Fatalf("expected other address to be allowed")
	}

	_ = rdb.Del(context.Background(),
		prefix+":write:192.168.1.1",
		prefix+":write:192.168.1.2",
	).Err()
}
