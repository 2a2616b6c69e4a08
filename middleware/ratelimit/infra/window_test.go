package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/benbjohnson/clock"
)

func testPolicies() domain.Policies {
	return domain.Policies{
		domain.ClassWrite: {Limit: 1, Window: 10 * time.Second},
		domain.ClassRead:  {Limit: 3, Window: time.Second},
	}
}

func permit(t *testing.T, l domain.Limiter, addr string, class domain.Class) domain.Decision {
	t.Helper()
	dec, err := l.Permit(context.Background(), domain.Key{Address: addr, Class: class})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return dec
}

func TestWindowStore_SecondWriteSameAddressRejected(t *testing.T) {
	s := NewWindowStore(testPolicies(), WithWindowClock(clock.NewMock()))

	if !permit(t, s, "192.168.1.1", domain.ClassWrite).Allowed {
		t.Fatalf("expected first write to be allowed")
	}
	dec := permit(t, s, "192.168.1.1", domain.ClassWrite)
	if dec.Allowed {
		t.Fatalf("expected second write in the same window to be rejected")
	}
	if dec.RetryAfter != 10*time.Second {
		t.Fatalf("expected RetryAfter=10s, got %s", dec.RetryAfter)
	}
	if !permit(t, s, "192.168.1.2", domain.ClassWrite).Allowed {
		t.Fatalf("expected write from another address to be allowed")
	}
}

func TestWindowStore_ClassesAreIndependent(t *testing.T) {
	s := NewWindowStore(testPolicies(), WithWindowClock(clock.NewMock()))

	permit(t, s, "10.0.0.1", domain.ClassWrite)
	if permit(t, s, "10.0.0.1", domain.ClassWrite).Allowed {
		t.Fatalf("expected write bucket to be exhausted")
	}
	for i := 0; i < 3; i++ {
		if !permit(t, s, "10.0.0.1", domain.ClassRead).Allowed {
			t.Fatalf("expected read %d to be allowed with exhausted write bucket", i+1)
		}
	}
	if permit(t, s, "10.0.0.1", domain.ClassRead).Allowed {
		t.Fatalf("expected 4th read to be rejected")
	}
}

func TestWindowStore_WindowExpiryStartsNewWindow(t *testing.T) {
	mock := clock.NewMock()
	s := NewWindowStore(testPolicies(), WithWindowClock(mock))

	permit(t, s, "10.0.0.1", domain.ClassWrite)
	mock.Add(9 * time.Second)
	dec := permit(t, s, "10.0.0.1", domain.ClassWrite)
	if dec.Allowed {
		t.Fatalf("expected rejection before window end")
	}
	if dec.RetryAfter != time.Second {
		t.Fatalf("expected RetryAfter=1s, got %s", dec.RetryAfter)
	}

	mock.Add(time.Second)
	if !permit(t, s, "10.0.0.1", domain.ClassWrite).Allowed {
		t.Fatalf("expected write to be allowed once the window expired")
	}
	if permit(t, s, "10.0.0.1", domain.ClassWrite).Allowed {
		t.Fatalf("expected the new window to hold a single slot")
	}
}

func TestWindowStore_RejectedRequestsDoNotExtendWindow(t *testing.T) {
	mock := clock.NewMock()
	s := NewWindowStore(testPolicies(), WithWindowClock(mock))

	permit(t, s, "10.0.0.1", domain.ClassRead)
	for i := 0; i < 50; i++ {
		permit(t, s, "10.0.0.1", domain.ClassRead)
	}
	mock.Add(time.Second)
	if !permit(t, s, "10.0.0.1", domain.ClassRead).Allowed {
		t.Fatalf("expected window to reset regardless of rejected attempts")
	}
}

func TestWindowStore_UnknownClassIsUnthrottled(t *testing.T) {
	s := NewWindowStore(domain.Policies{domain.ClassWrite: {Limit: 1, Window: time.Second}}, WithWindowClock(clock.NewMock()))

	for i := 0; i < 5; i++ {
		if !permit(t, s, "10.0.0.1", domain.ClassRead).Allowed {
			t.Fatalf("expected class without policy to be unthrottled")
		}
	}
}

func TestWindowStore_ConcurrentPermitsGrantExactlyLimit(t *testing.T) {
	const limit = 10
	s := NewWindowStore(domain.Policies{
		domain.ClassWrite: {Limit: limit, Window: time.Minute},
	}, WithWindowClock(clock.NewMock()))

	var granted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dec, err := s.Permit(context.Background(), domain.Key{Address: "10.0.0.1", Class: domain.ClassWrite})
			if err == nil && dec.Allowed {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != limit {
		t.Fatalf("expected exactly %d permits, got %d", limit, got)
	}
}

func TestWindowStore_CleanupRemovesExpiredBuckets(t *testing.T) {
	mock := clock.NewMock()
	s := NewWindowStore(testPolicies(), WithWindowClock(mock), WithWindowCleanupEvery(0))

	permit(t, s, "10.0.0.1", domain.ClassWrite)
	permit(t, s, "10.0.0.2", domain.ClassRead)
	if s.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", s.Len())
	}

	// read expira em 1s, write ainda não
	mock.Add(2 * time.Second)
	s.Cleanup()
	if s.Len() != 1 {
		t.Fatalf("expected 1 bucket after cleanup, got %d", s.Len())
	}

	mock.Add(10 * time.Second)
	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected no buckets, got %d", s.Len())
	}
}
