package metaapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFailFastRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, FailFast)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	err := rl.Acquire(ctx)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("got %v, expected RateLimitError", err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > time.Minute {
		t.Fatalf("retry-after hint %s out of range", rle.RetryAfter)
	}
}

func TestWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, FailFast)
	ctx := context.Background()

	base := time.Now()
	rl.now = func() time.Time { return base }
	if err := rl.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	rl.now = func() time.Time { return base.Add(30 * time.Second) }
	if err := rl.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rl.Acquire(ctx); err == nil {
		t.Fatal("third acquire inside window should fail")
	}

	// Oldest timestamp exits the window: a slot frees up.
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("acquire after window slide: %v", err)
	}
}

func TestWaitPolicyBlocksUntilSlot(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond, Wait)
	ctx := context.Background()

	if err := rl.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("blocking acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("blocking acquire returned after %s, expected to wait for the window", elapsed)
	}
}

func TestWaitPolicyHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, Wait)

	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, expected DeadlineExceeded", err)
	}
}
