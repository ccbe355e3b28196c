package router

import "testing"

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 2; i++ {
		b.recordFailure("openai")
		if b.tripped("openai") {
			t.Fatalf("expected breaker untripped after %d failures", i+1)
		}
	}
	b.recordFailure("openai")
	if !b.tripped("openai") {
		t.Fatal("expected breaker tripped at 3 failures")
	}
}

func TestBreakerResetClearsAllProviders(t *testing.T) {
	b := newBreaker()
	b.recordFailure("openai")
	b.recordFailure("openai")
	b.recordFailure("openai")
	b.reset()
	if b.tripped("openai") {
		t.Fatal("expected breaker cleared after reset")
	}
}

func TestBreakerIsPerProvider(t *testing.T) {
	b := newBreaker()
	b.recordFailure("openai")
	b.recordFailure("openai")
	b.recordFailure("openai")
	if b.tripped("anthropic") {
		t.Fatal("expected independent breaker state per provider")
	}
}
