package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestLimiter creates a Limiter wired to the given fake clock.
func newTestLimiter(rate int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(rate, window)
	l.now = clock.Now
	return l
}

func TestAllowBasic(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !l.Allow("203.0.113.9") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("203.0.113.9") {
		t.Fatal("4th attempt should be denied")
	}
}

func TestAllowDifferentKeys(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	if !l.Allow("a") {
		t.Fatal("first attempt for key 'a' should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("second attempt for key 'a' should be denied")
	}
	// Different key has its own bucket.
	if !l.Allow("b") {
		t.Fatal("first attempt for key 'b' should be allowed")
	}
}

func TestTokenRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	// 60 tokens per minute = 1 token per second.
	l := newTestLimiter(60, time.Minute, clock)

	for i := 0; i < 60; i++ {
		l.Allow("k")
	}
	if l.Allow("k") {
		t.Fatal("should be denied after exhausting tokens")
	}

	clock.Advance(2 * time.Second)
	if !l.Allow("k") {
		t.Fatal("tokens should refill over time")
	}
	if !l.Allow("k") {
		t.Fatal("two seconds should refill two tokens")
	}
	if l.Allow("k") {
		t.Fatal("third attempt should be denied again")
	}
}

func TestRemaining(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	if got := l.Remaining("k"); got != 5 {
		t.Fatalf("Remaining = %d, want 5", got)
	}
	l.Allow("k")
	l.Allow("k")
	if got := l.Remaining("k"); got != 3 {
		t.Fatalf("Remaining after two attempts = %d, want 3", got)
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	var rejected int
	handler := Middleware(l, func() { rejected++ })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if rejected != 1 {
		t.Fatalf("reject callback ran %d times, want 1", rejected)
	}
}
