package extract

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	rl := NewRateLimiter(20)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.WaitTurn(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("elapsed=%s", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.WaitTurn(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := rl.WaitTurn(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
