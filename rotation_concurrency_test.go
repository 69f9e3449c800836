package authcore

import (
	"context"
	"sync"
	"testing"
)

func TestRotationConcurrencySingleActiveRecord(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, store, _ := newTestEngine(t, clk)

	if _, err := engine.IssueInitial(ctx, testSubject); err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	pairs := make(chan TokenPair, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := engine.Rotate(ctx, testSubject)
			if err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
			pairs <- pair
		}()
	}
	wg.Wait()
	close(pairs)

	if got := store.ActiveCount(clk.Now(), testSubject); got != 1 {
		t.Fatalf("active records = %d, want 1", got)
	}

	// Every rotation produced a pair, but only the last writer's refresh
	// token is still tracked.
	valid := 0
	for pair := range pairs {
		verdict, _ := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
		if verdict == VerdictValid {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("pairs surviving rotation = %d, want 1", valid)
	}
}
