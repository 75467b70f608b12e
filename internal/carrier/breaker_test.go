package carrier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{
		FailureThreshold: 5,
		FailureWindow:    30 * time.Second,
		Cooldown:         60 * time.Second,
	}, NewMemoryStore())
	b.now = func() time.Time { return now }
	return b, &now
}

func failTimes(t *testing.T, b *Breaker, provider string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := b.Failure(ctx, provider); err != nil {
			t.Fatalf("Failure: %v", err)
		}
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 4)
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected closed before threshold, got %v", err)
	}

	failTimes(t, b, "ups", 1)
	if err := b.Allow(ctx, "ups"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen after 5 failures, got %v", err)
	}
}

func TestBreakerWindowResetsFailureCount(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 4)
	// 第 5 次失败落在窗口外，计数重开
	*now = now.Add(31 * time.Second)
	failTimes(t, b, "ups", 1)

	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected closed after window reset, got %v", err)
	}
	snapshot, err := b.Snapshot(ctx, "ups")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.FailureCount != 1 {
		t.Fatalf("expected failure count 1 after reset, got %d", snapshot.FailureCount)
	}
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 5)
	if err := b.Allow(ctx, "ups"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected open, got %v", err)
	}

	// 冷却期满，首个请求放行探测
	*now = now.Add(61 * time.Second)
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected half-open probe allowed, got %v", err)
	}
	// 探测在途期间其余请求仍拒绝
	if err := b.Allow(ctx, "ups"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected concurrent probe rejected, got %v", err)
	}

	if err := b.Success(ctx, "ups"); err != nil {
		t.Fatalf("Success: %v", err)
	}
	snapshot, err := b.Snapshot(ctx, "ups")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.State != "closed" || snapshot.FailureCount != 0 {
		t.Fatalf("expected closed with zero failures, got %+v", snapshot)
	}
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected closed after probe success, got %v", err)
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 5)
	*now = now.Add(61 * time.Second)
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected probe allowed, got %v", err)
	}

	failTimes(t, b, "ups", 1)
	if err := b.Allow(ctx, "ups"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected reopened after probe failure, got %v", err)
	}

	// 新一轮冷却期满后可再次探测
	*now = now.Add(61 * time.Second)
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected second probe allowed, got %v", err)
	}
}

func TestBreakerIsolatesProviders(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 5)
	if err := b.Allow(ctx, "ups"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ups open, got %v", err)
	}
	if err := b.Allow(ctx, "fedex"); err != nil {
		t.Fatalf("expected fedex unaffected, got %v", err)
	}
}

func TestBreakerSuccessResetsWindow(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	failTimes(t, b, "ups", 4)
	if err := b.Success(ctx, "ups"); err != nil {
		t.Fatalf("Success: %v", err)
	}
	failTimes(t, b, "ups", 4)
	if err := b.Allow(ctx, "ups"); err != nil {
		t.Fatalf("expected closed, success should reset failure count, got %v", err)
	}
}

func TestBreakerRejectsEmptyProvider(t *testing.T) {
	b, _ := newTestBreaker(t)
	if err := b.Allow(context.Background(), "  "); !errors.Is(err, ErrProviderInvalid) {
		t.Fatalf("expected ErrProviderInvalid, got %v", err)
	}
}
