package fetch

import (
	"context"
	"testing"
	"time"
)

func TestOriginLimiterSerializesPerOrigin(t *testing.T) {
	l := NewOriginLimiter(50)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "https://support.apple.com/en-us/HT213983"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected roughly 2 inter-request delays (~100ms) for 3 same-origin requests, took %s", elapsed)
	}
}

func TestOriginLimiterDoesNotSerializeAcrossOrigins(t *testing.T) {
	l := NewOriginLimiter(200)
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "https://support.apple.com/en-us/HT213983"); err != nil {
		t.Fatal(err)
	}
	if err := l.Wait(ctx, "https://gdmf.apple.com/v2/pmv"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected distinct origins to not share a rate limiter, took %s", elapsed)
	}
}
